package memstore

import "time"

type addRecord struct {
	list     string
	chunkNum uint32
	host     uint32
	prefix   string // []byte prefixes are compared/keyed as strings internally
}

type subRecord struct {
	list        string
	chunkNum    uint32
	addChunkNum uint32
	host        uint32
	prefix      string
}

type fullHashRecord struct {
	list      string
	chunkNum  uint32
	hash      [32]byte
	timestamp time.Time
}
