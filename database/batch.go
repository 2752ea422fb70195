package database

type batchOp struct {
	key   []byte
	value []byte
	del   bool
}

// Batch collects writes that Database.Write applies in one transaction.
type Batch struct {
	ops []batchOp
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), del: true})
}

func (b *Batch) Len() int { return len(b.ops) }
