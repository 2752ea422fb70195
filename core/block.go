package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Block is one mined unit. The link to its predecessor is by value: PreviousHash
// equals the Hash of the block before it (or the seed hash for the first block).
type Block struct {
	Number       uint64 `json:"number"`
	PreviousHash string `json:"previousHash"`
	Miner        string `json:"miner"`
	Nonce        string `json:"nonce"`
	Hash         string `json:"hash"`
	Difficulty   int    `json:"difficulty"` // leading zero bits Hash actually has
	Required     int    `json:"required"`   // threshold Difficulty had to exceed
	Attempts     uint64 `json:"attempts"`
	Timestamp    int64  `json:"timestamp"`
}

// Implementasi interfaces.BlockConsensusItf untuk *Block
func (b *Block) GetParentHash() string { return b.PreviousHash }
func (b *Block) GetMiner() string      { return b.Miner }
func (b *Block) GetRequired() int      { return b.Required }
func (b *Block) GetNonce() string      { return b.Nonce }
func (b *Block) GetHash() string       { return b.Hash }
func (b *Block) GetDifficulty() int    { return b.Difficulty }

// Seal records the search result. Only the first call has an effect.
func (b *Block) Seal(nonce, hash string, difficulty int, attempts uint64) {
	if b.IsSealed() {
		return
	}
	b.Nonce = nonce
	b.Hash = hash
	b.Difficulty = difficulty
	b.Attempts = attempts
	b.Timestamp = time.Now().Unix()
}

func (b *Block) IsSealed() bool { return b.Hash != "" }

// HashInput is the exact string the digest is computed over.
func (b *Block) HashInput() string {
	return b.PreviousHash + b.Miner + b.Nonce
}

// NewBlock creates an unsealed block that must beat the required difficulty.
func NewBlock(previousHash string, number uint64, miner string, required int) *Block {
	return &Block{
		Number:       number,
		PreviousHash: previousHash,
		Miner:        miner,
		Required:     required,
	}
}

func (b *Block) Copy() *Block {
	cp := *b
	return &cp
}

func (b *Block) String() string {
	return fmt.Sprintf("Block #%d {prev=%s nonce=%s hash=%s difficulty=%d}", b.Number, b.PreviousHash, b.Nonce, b.Hash, b.Difficulty)
}

// ToJSON serializes the block to JSON.
func (b *Block) ToJSON() ([]byte, error) {
	return json.Marshal(b)
}

// BlockFromJSON deserializes a block from JSON.
func BlockFromJSON(data []byte) (*Block, error) {
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}
