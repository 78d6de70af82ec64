package protocol

// Allocation limits to keep a malicious or faulty peer from driving the
// client out of memory via forged length prefixes.
const (
	// MaxPacketSize is the maximum declared frame payload (16MB). Draw
	// packets for a 4k window fit comfortably below this.
	MaxPacketSize = 16 * 1024 * 1024

	// MaxDecompressedSize caps the output of any decompression strategy
	// (64MB), bounding the amplification of a hostile compressed payload.
	MaxDecompressedSize = 64 * 1024 * 1024

	// MaxCollectionCount is the maximum number of elements in a decoded
	// list or dictionary.
	MaxCollectionCount = 100_000

	// MaxNestingDepth bounds recursion while decoding nested containers.
	MaxNestingDepth = 32
)
