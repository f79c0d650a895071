// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hash types for hashString
const (
	hashTypeNameA   = 1
	hashTypeNameB   = 2
	hashTypeFileKey = 3
)

// hashString computes the MPQ hash of a string, case-insensitive and with
// '/' treated like '\'. Known hashes from other tools pin down the crypt
// table, and file keys for test members come from it.
func hashString(s string, hashType uint32) uint32 {
	table := cryptTable()
	seed1 := uint32(0x7FED7FED)
	seed2 := uint32(0xEEEEEEEE)

	for i := 0; i < len(s); i++ {
		ch := uint32(s[i])
		if ch >= 'a' && ch <= 'z' {
			ch -= 0x20
		}
		if ch == '/' {
			ch = '\\'
		}

		seed1 = table[hashType*0x100+ch] ^ (seed1 + seed2)
		seed2 = ch + seed1 + seed2 + (seed2 << 5) + 3
	}

	return seed1
}

// encryptBlock encrypts a block of data in place
func encryptBlock(data []uint32, key uint32) {
	table := cryptTable()
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += table[0x400+(key&0xFF)]
		plain := data[i]
		data[i] = plain ^ (key + seed)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
	}
}

// encryptBytes is the inverse of decryptBytes; tests use it to build
// encrypted members.
func encryptBytes(data []byte, key uint32) {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	encryptBlock(words, key)

	for i, word := range words {
		binary.LittleEndian.PutUint32(data[i*4:], word)
	}
}

func TestHashString(t *testing.T) {
	// Keys defined in StormLib.h:
	// MPQ_KEY_HASH_TABLE = 0xC3AF3770, MPQ_KEY_BLOCK_TABLE = 0xEC83B3A3
	tests := []struct {
		input    string
		hashType uint32
		expected uint32
	}{
		{"(hash table)", hashTypeFileKey, 0xC3AF3770},
		{"(block table)", hashTypeFileKey, 0xEC83B3A3},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, hashString(test.input, test.hashType),
			"hashString(%q, %d)", test.input, test.hashType)
	}
}

// From StormLib's StormTest.cpp HashVals test data.
func TestHashStringFromStormLib(t *testing.T) {
	tests := []struct {
		name  string
		input string
		hashA uint32
		hashB uint32
	}{
		{
			name:  "StormLib test file path",
			input: "ReplaceableTextures\\CommandButtons\\BTNHaboss79.blp",
			hashA: 0x8bd6929a,
			hashB: 0xfd55129b,
		},
		{
			name:  "forward slashes",
			input: "ReplaceableTextures/CommandButtons/BTNHaboss79.blp",
			hashA: 0x8bd6929a,
			hashB: 0xfd55129b,
		},
		{
			name:  "lowercase",
			input: "replaceabletextures\\commandbuttons\\btnhaboss79.blp",
			hashA: 0x8bd6929a,
			hashB: 0xfd55129b,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.hashA, hashString(test.input, hashTypeNameA))
			assert.Equal(t, test.hashB, hashString(test.input, hashTypeNameB))
		})
	}
}

func TestCryptTableInitialization(t *testing.T) {
	table := cryptTable()
	require.Equal(t, 0x500, len(table))

	seed := uint32(0x00100001)
	for index1 := 0; index1 < 0x100; index1++ {
		index2 := index1
		for i := 0; i < 5; i++ {
			seed = (seed*125 + 3) % 0x2AAAAB
			temp1 := (seed & 0xFFFF) << 0x10
			seed = (seed*125 + 3) % 0x2AAAAB
			temp2 := seed & 0xFFFF

			require.Equal(t, temp1|temp2, table[index2], "cryptTable[0x%03X]", index2)
			index2 += 0x100
		}
	}
}

func TestCryptTableIsShared(t *testing.T) {
	var wg sync.WaitGroup
	tables := make([]*[0x500]uint32, 8)
	for i := range tables {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i] = cryptTable()
		}(i)
	}
	wg.Wait()

	for _, table := range tables {
		assert.Same(t, tables[0], table)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []uint32
		key  string
	}{
		{"hash table key", []uint32{0x12345678, 0xDEADBEEF, 0xCAFEBABE, 0xF00DF00D}, "(hash table)"},
		{"block table key", []uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444}, "(block table)"},
		{"single value", []uint32{0xABCDEF01}, "(hash table)"},
		{"zeros", []uint32{0, 0, 0, 0}, "(hash table)"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := append([]uint32(nil), test.data...)
			key := hashString(test.key, hashTypeFileKey)

			encryptBlock(data, key)
			assert.NotEqual(t, test.data, data)

			decryptBlock(data, key)
			assert.Equal(t, test.data, data)
		})
	}
}

func TestDecryptBytesLeavesTrailingBytes(t *testing.T) {
	plain := []byte("0123456789")
	data := bytes.Clone(plain)

	encryptBytes(data, 0x5EED)
	assert.NotEqual(t, plain[:8], data[:8])
	assert.Equal(t, plain[8:], data[8:])

	decryptBytes(data, 0x5EED)
	assert.Equal(t, plain, data)
}
