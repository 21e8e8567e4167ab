package qdb

import (
	"fmt"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
)

// Command is one reversible step of a MemQDB mutation.
type Command interface {
	Do() error
	Undo() error
}

func NewDeleteCommand[T any](m map[string]T, key string) *DeleteCommand[T] {
	return &DeleteCommand[T]{m: m, key: key}
}

type DeleteCommand[T any] struct {
	m       map[string]T
	key     string
	value   T
	present bool
}

func (c *DeleteCommand[T]) Do() error {
	c.value, c.present = c.m[c.key]
	delete(c.m, c.key)
	return nil
}

func (c *DeleteCommand[T]) Undo() error {
	if c.present {
		c.m[c.key] = c.value
	}
	return nil
}

func NewUpdateCommand[T any](m map[string]T, key string, value T) *UpdateCommand[T] {
	return &UpdateCommand[T]{m: m, key: key, value: value}
}

type UpdateCommand[T any] struct {
	m         map[string]T
	key       string
	value     T
	prevValue T
	present   bool
}

func (c *UpdateCommand[T]) Do() error {
	c.prevValue, c.present = c.m[c.key]
	c.m[c.key] = c.value
	return nil
}

func (c *UpdateCommand[T]) Undo() error {
	if !c.present {
		delete(c.m, c.key)
	} else {
		c.m[c.key] = c.prevValue
	}
	return nil
}

// ExecuteCommands applies commands in order and persists with saver.
// On any failure the applied prefix is undone in reverse order.
func ExecuteCommands(saver func() error, commands ...Command) error {
	completed := 0
	var err error
	for _, c := range commands {
		if err = c.Do(); err != nil {
			break
		}
		completed++
	}
	if err == nil {
		err = saver()
	}
	if err == nil {
		return nil
	}

	dslog.Zero.Info().Int("commands", completed).Msg("memqdb: undo commands")
	for i := completed - 1; i >= 0; i-- {
		if undoErr := commands[i].Undo(); undoErr != nil {
			return fmt.Errorf("failed to undo command %s while: %s", undoErr.Error(), err.Error())
		}
	}
	return err
}
