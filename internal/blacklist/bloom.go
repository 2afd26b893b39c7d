package blacklist

import "hash/fnv"

// bloomFilter 布隆过滤器，使用 FNV-1a 与 FNV-1 做双重哈希。
// 只支持添加，不支持删除；删除后的 URL 仍可能被过滤器报告为存在，
// 所以服务端响应中第二个值（精确集合）才是确认结果。
type bloomFilter struct {
	bits   []uint64
	size   uint64
	hashes int
}

func newBloomFilter(size, hashes int) *bloomFilter {
	if size <= 0 {
		size = 1 << 16
	}
	if hashes <= 0 {
		hashes = 3
	}
	return &bloomFilter{
		bits:   make([]uint64, (size+63)/64),
		size:   uint64(size),
		hashes: hashes,
	}
}

func (b *bloomFilter) positions(key string) []uint64 {
	h1 := fnv.New64a()
	h1.Write([]byte(key))
	a := h1.Sum64()

	h2 := fnv.New64()
	h2.Write([]byte(key))
	c := h2.Sum64() | 1

	pos := make([]uint64, b.hashes)
	for i := range pos {
		pos[i] = (a + uint64(i)*c) % b.size
	}
	return pos
}

func (b *bloomFilter) add(key string) {
	for _, p := range b.positions(key) {
		b.bits[p/64] |= 1 << (p % 64)
	}
}

func (b *bloomFilter) mayContain(key string) bool {
	for _, p := range b.positions(key) {
		if b.bits[p/64]&(1<<(p%64)) == 0 {
			return false
		}
	}
	return true
}
