package core

import (
	"errors"
	"fmt"
	"regexp"

	"powchain/crypto"
	"powchain/logger"
)

// MaxMinerLength bounds the miner identity mixed into every digest.
const MaxMinerLength = 256

// Validator checks the shape of a block before its proof of work is looked at.
type Validator struct {
	maxMinerLength int
	hashRegex      *regexp.Regexp
	nonceRegex     *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		maxMinerLength: MaxMinerLength,
		hashRegex:      regexp.MustCompile("^[0-9a-f]{64}$"),
		// nonces are rendered without zero padding
		nonceRegex: regexp.MustCompile("^(0|[1-9a-f][0-9a-f]{0,15})$"),
	}
}

var defaultValidator = NewValidator()

// ValidateBlock checks field formats and ranges of a sealed block.
func (v *Validator) ValidateBlock(block *Block) error {
	if block == nil {
		return errors.New("block is nil")
	}
	if block.Miner == "" || len(block.Miner) > v.maxMinerLength {
		logger.Warningf("Invalid miner identity length %d in block %d", len(block.Miner), block.Number)
		return fmt.Errorf("invalid miner identity")
	}
	if !v.IsValidHash(block.PreviousHash) {
		logger.Warningf("Invalid previous hash %q in block %d", block.PreviousHash, block.Number)
		return fmt.Errorf("invalid previous hash format")
	}
	if !block.IsSealed() {
		return errors.New("block is not sealed")
	}
	if !v.IsValidHash(block.Hash) {
		logger.Warningf("Invalid hash %q in block %d", block.Hash, block.Number)
		return fmt.Errorf("invalid hash format")
	}
	if !v.nonceRegex.MatchString(block.Nonce) {
		logger.Warningf("Invalid nonce %q in block %d", block.Nonce, block.Number)
		return fmt.Errorf("invalid nonce format")
	}
	if block.Required < 0 || block.Required >= crypto.DigestBits {
		return fmt.Errorf("required difficulty %d out of range", block.Required)
	}
	if block.Difficulty <= block.Required || block.Difficulty > crypto.DigestBits {
		return fmt.Errorf("difficulty %d does not exceed required %d", block.Difficulty, block.Required)
	}
	return nil
}

func (v *Validator) IsValidHash(hash string) bool {
	return v.hashRegex.MatchString(hash)
}
