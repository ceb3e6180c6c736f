package bind_group_provider

// BufferWrite describes a single GPU buffer write targeting one buffer role of a
// BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Role     BufferRole
	Offset   uint64
	Data     []byte
}
