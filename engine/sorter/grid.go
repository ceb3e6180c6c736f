package sorter

// DispatchGrid returns the workgroup counts that cover 2^logLen invocations with
// 2^groupLog lanes per workgroup. Up to one workgroup of elements runs as a single
// group; larger arrays split the remaining exponent g = logLen-groupLog over a
// (2*2^(g/2), 2^(g/2), 1) grid so neither axis grows past the square root of the work.
//
// Parameters:
//   - logLen: log2 of the array length
//   - groupLog: log2 of the kernel's lanes per workgroup
//
// Returns:
//   - [3]uint32: workgroup counts along x, y and z
func DispatchGrid(logLen, groupLog uint32) [3]uint32 {
	if logLen <= groupLog {
		return [3]uint32{1, 1, 1}
	}
	half := uint32(1) << ((logLen - groupLog) / 2)
	return [3]uint32{2 * half, half, 1}
}
