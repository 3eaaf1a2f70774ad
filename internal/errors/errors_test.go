package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = NewStd("sentinel")

func TestBuildFastPathWithoutHooks(t *testing.T) {
	require.False(t, hasHooks())

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildKeepsExplicitFields(t *testing.T) {
	ee := New(errSentinel).
		Component("records").
		Category(CategoryNotFound).
		Priority(PriorityHigh).
		Context("patient_id", int64(7)).
		Build()

	assert.Equal(t, "records", ee.GetComponent())
	assert.Equal(t, string(CategoryNotFound), ee.GetCategory())
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	assert.Equal(t, int64(7), ee.GetContext()["patient_id"])
	assert.True(t, IsNotFound(ee))
	assert.ErrorIs(t, ee, errSentinel)
}

func TestPriorityFallback(t *testing.T) {
	ee := New(errSentinel).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ee = New(errSentinel).Priority("").Build()
	assert.Empty(t, ee.GetPriority())
}

func TestWrappedEnhancedErrorMatchesSentinel(t *testing.T) {
	inner := New(errSentinel).Category(CategoryConflict).Build()
	wrapped := fmt.Errorf("saving: %w", inner)

	assert.ErrorIs(t, wrapped, errSentinel)
	assert.True(t, IsCategory(wrapped, CategoryConflict))
	assert.False(t, IsCategory(wrapped, CategoryNotFound))

	var ee *EnhancedError
	require.True(t, As(wrapped, &ee))
	assert.Same(t, inner, ee)
}

func TestIsMatchesByCategory(t *testing.T) {
	a := New(NewStd("a")).Category(CategoryValidation).Build()
	b := New(NewStd("b")).Category(CategoryValidation).Build()
	c := New(NewStd("c")).Category(CategoryDatabase).Build()

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestGetContextReturnsCopy(t *testing.T) {
	ee := New(errSentinel).Context("key", "value").Build()

	ctx := ee.GetContext()
	ctx["key"] = "changed"

	assert.Equal(t, "value", ee.GetContext()["key"])
	assert.Nil(t, New(errSentinel).Build().GetContext())
}

func TestFileContext(t *testing.T) {
	ee := New(errSentinel).
		FileContext("patient_1/20240102030405_scan.PNG", 2048).
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "png", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])

	ctx = New(errSentinel).FileContext("patient_1/README", 0).Build().GetContext()
	assert.Equal(t, "none", ctx["file_extension"])
	assert.NotContains(t, ctx, "file_size_category")
}

func TestCategorizeFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{100, "tiny"},
		{4096, "small"},
		{5 * 1024 * 1024, "medium"},
		{50 * 1024 * 1024, "large"},
		{500 * 1024 * 1024, "very-large"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeFileSize(tt.size), "size %d", tt.size)
	}
}

func TestHooksReceiveClassifiedErrors(t *testing.T) {
	var mu sync.Mutex
	var seen []ErrorCategory
	remove := AddErrorHook(func(ee *EnhancedError) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ee.Category)
	})
	t.Cleanup(remove)

	New(NewStd("patient not found")).Build()
	New(NewStd("duplicate entry")).Build()
	New(NewStd("bad")).Category(CategoryIntegrity).Build()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ErrorCategory{CategoryNotFound, CategoryConflict, CategoryIntegrity}, seen)
}

func TestRemovingHookLeavesOthers(t *testing.T) {
	var a, b int
	removeA := AddErrorHook(func(*EnhancedError) { a++ })
	removeB := AddErrorHook(func(*EnhancedError) { b++ })

	New(NewStd("first")).Build()
	removeA()
	removeA()
	New(NewStd("second")).Build()

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.True(t, hasHooks())

	removeB()
	assert.False(t, hasHooks())
}

func TestBuildWithoutError(t *testing.T) {
	ee := New(nil).Build()
	require.Error(t, ee.Err)
	assert.Equal(t, "unspecified error", ee.Error())
}
