package engine

const (
	ASC = iota
	DESC
)

type SortKey struct {
	ColIndex int
	Order    int
	Op       Operator
}

type SortableWithContext struct {
	Data [][][]byte
	Keys []SortKey
}

func (a SortableWithContext) Len() int      { return len(a.Data) }
func (a SortableWithContext) Swap(i, j int) { a.Data[i], a.Data[j] = a.Data[j], a.Data[i] }
func (a SortableWithContext) Less(i, j int) bool {
	for _, k := range a.Keys {
		l, r := a.Data[i][k.ColIndex], a.Data[j][k.ColIndex]
		if k.Op.Less(l, r) {
			return k.Order == ASC
		}
		if k.Op.Less(r, l) {
			return k.Order == DESC
		}
	}
	return false
}
