package protocol

// FragmentCount returns ceil(n / MaxFragmentSize).
func FragmentCount(n int) int {
	return (n + MaxFragmentSize - 1) / MaxFragmentSize
}

// Fragment splits packet into MaxFragmentSize slices. The slices alias packet;
// fragment i (0-based) travels with sequence number i+1.
func Fragment(packet []byte) [][]byte {
	out := make([][]byte, 0, FragmentCount(len(packet)))
	for off := 0; off < len(packet); off += MaxFragmentSize {
		end := min(off+MaxFragmentSize, len(packet))
		out = append(out, packet[off:end])
	}
	return out
}

// FragmentOffset is the byte offset of sequence seq inside the packet.
func FragmentOffset(seq uint8) int {
	return (int(seq) - 1) * MaxFragmentSize
}
