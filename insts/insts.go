// Package insts provides trace record definitions and decoding.
//
// A trace line has the form "<label> <hex value>". Label 0 is a load and
// label 1 a store of the given byte address; label 2 is a block of compute
// cycles.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst, err := decoder.Decode("0 817b08")
//	fmt.Printf("Op: %v, Value: %#x\n", inst.Op, inst.Value)
package insts
