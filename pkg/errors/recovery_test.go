package errors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "Convert")
		panic("index out of range")
	}

	err := testFunc()
	require.Error(t, err)

	var panicErr *PanicError
	require.True(t, As(err, &panicErr))
	assert.Equal(t, "Convert", panicErr.Operation)
	assert.Equal(t, "index out of range", panicErr.PanicValue)
	assert.NotEmpty(t, panicErr.StackTrace)
	assert.Equal(t, "panic in Convert: index out of range", panicErr.Error())
}

func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "Convert")
		return nil
	}

	assert.NoError(t, testFunc())
}

func TestRecover_WithExistingError(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "Convert")
		err = ErrShortRead
		panic("after error")
	}

	err := testFunc()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "panic in Convert"))
	assert.True(t, Is(err, ErrShortRead))
}

func TestSafeExecute(t *testing.T) {
	testCases := []struct {
		name       string
		fn         func() error
		wantPanic  bool
		wantTarget error
	}{
		{
			name: "success",
			fn:   func() error { return nil },
		},
		{
			name:       "returned error",
			fn:         func() error { return ErrUnknownBooster },
			wantTarget: ErrUnknownBooster,
		},
		{
			name:       "error panic keeps cause",
			fn:         func() error { panic(ErrTypeMismatch) },
			wantPanic:  true,
			wantTarget: ErrTypeMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := SafeExecute("decode", tc.fn)
			if tc.wantTarget == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, Is(err, tc.wantTarget))
			var panicErr *PanicError
			assert.Equal(t, tc.wantPanic, As(err, &panicErr))
		})
	}
}
