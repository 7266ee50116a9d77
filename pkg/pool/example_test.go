package pool_test

import (
	"fmt"

	"github.com/bureau14/qdbbatch/pkg/pool"
)

type scratch struct {
	rows []int64
}

// Example shows a typed pool whose objects are reset on Put.
func Example() {
	p := pool.New(
		func() *scratch { return &scratch{rows: make([]int64, 0, 8)} },
		func(s *scratch) { s.rows = s.rows[:0] },
	)

	s := p.Get()
	s.rows = append(s.rows, 1, 2, 3)
	fmt.Println(len(s.rows))
	p.Put(s)

	fmt.Println(p.Stats().InUse)

	// Output:
	// 3
	// 0
}

// ExampleGetBuffer shows the shared frame buffer pool.
func ExampleGetBuffer() {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	buf.WriteString("QDBF")
	fmt.Println(buf.Len())

	// Output:
	// 4
}
