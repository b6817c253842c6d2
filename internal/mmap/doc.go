// Package mmap provides read-only memory-mapped access to local record
// files.
//
//	m, err := mmap.Open("vets_000.avro")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.AdviseSequential()
//	r := io.NewSectionReader(m, 0, m.Size())
//
// Unix uses mmap(2) and madvise(2); Windows uses MapViewOfFile and ignores
// access hints.
package mmap
