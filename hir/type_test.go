package hir

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternIdentity(t *testing.T) {
	tt := NewTypeTable()

	i32a, err := tt.Int(32)
	require.NoError(t, err)
	i32b, err := tt.Int(32)
	require.NoError(t, err)
	require.Equal(t, i32a, i32b, "structurally equal types must share a handle")

	i64, err := tt.Int(64)
	require.NoError(t, err)
	require.NotEqual(t, i32a, i64)

	p1, err := tt.Pointer(i32a)
	require.NoError(t, err)
	p2, err := tt.Pointer(i32b)
	require.NoError(t, err)
	require.Equal(t, p1, p2)

	s1, err := tt.Struct(Field{"x", i32a}, Field{"y", i64})
	require.NoError(t, err)
	s2, err := tt.Struct(Field{"x", i32a}, Field{"y", i64})
	require.NoError(t, err)
	require.Equal(t, s1, s2)

	// Field order is part of the structure.
	s3, err := tt.Struct(Field{"y", i64}, Field{"x", i32a})
	require.NoError(t, err)
	require.NotEqual(t, s1, s3)
}

func TestInternBadWidth(t *testing.T) {
	tt := NewTypeTable()
	_, err := tt.Int(13)
	var te *TypeError
	require.ErrorAs(t, err, &te)
}

func TestLayout(t *testing.T) {
	tt := NewTypeTable()
	i8, _ := tt.Int(8)
	i16, _ := tt.Int(16)
	i32, _ := tt.Int(32)
	ptr, _ := tt.Pointer(i32)

	require.Equal(t, uint64(1), tt.SizeOf(i8))
	require.Equal(t, uint64(4), tt.SizeOf(i32))
	require.Equal(t, uint64(PointerSize), tt.SizeOf(ptr))
	require.Equal(t, uint64(4), tt.AlignOf(ptr))

	arr, err := tt.Array(i16, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(8), tt.SizeOf(arr))
	require.Equal(t, uint64(2), tt.AlignOf(arr))

	// i8 at offset 0, i32 padded to offset 4, total rounded to alignment.
	st, err := tt.Struct(Field{"a", i8}, Field{"b", i32})
	require.NoError(t, err)
	require.Equal(t, uint64(8), tt.SizeOf(st))
	require.Equal(t, uint64(4), tt.AlignOf(st))
}

func TestLayoutOverflow(t *testing.T) {
	tt := NewTypeTable()
	i64, _ := tt.Int(64)
	_, err := tt.Array(i64, AddressRange)
	var te *TypeError
	require.ErrorAs(t, err, &te)
}

func TestIsAssignable(t *testing.T) {
	tt := NewTypeTable()
	i32, _ := tt.Int(32)
	i64, _ := tt.Int(64)
	other, _ := tt.Int(32)

	require.True(t, tt.IsAssignable(i32, other))
	require.False(t, tt.IsAssignable(i32, i64))
}

func TestInternConcurrent(t *testing.T) {
	tt := NewTypeTable()
	const workers = 16

	handles := make([][]Type, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 200; round++ {
				i32, err := tt.Int(32)
				if err != nil {
					t.Error(err)
					return
				}
				arr, err := tt.Array(i32, uint64(round%7)+1)
				if err != nil {
					t.Error(err)
					return
				}
				st, err := tt.Struct(
					Field{"n", i32},
					Field{"data", arr},
					Field{Name: fmt.Sprintf("f%d", round%5), Type: i32},
				)
				if err != nil {
					t.Error(err)
					return
				}
				handles[w] = append(handles[w], st)
			}
		}()
	}
	wg.Wait()

	// Every goroutine must have observed the same handle for the same
	// structure.
	for w := 1; w < workers; w++ {
		require.Equal(t, handles[0], handles[w])
	}
}
