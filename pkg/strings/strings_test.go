package strings

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	builder := NewBuilder(32)

	builder.WriteString("hello")
	_ = builder.WriteByte(' ')
	fmt.Fprintf(builder, "%s", "world")

	assert.Equal(t, "hello world", builder.String())
	assert.Equal(t, 11, builder.Len())
}

func TestBuilderGrow(t *testing.T) {
	builder := NewBuilder(2)
	initialCap := builder.Cap()

	builder.Grow(10)
	assert.Greater(t, builder.Cap(), initialCap)
}

func TestStringSurvivesReuse(t *testing.T) {
	b := GetBuilder(Small)
	b.WriteString("first")
	s := b.String()
	PutBuilder(b, Small)

	again := GetBuilder(Small)
	assert.Zero(t, again.Len())
	again.WriteString("XXXXX")
	assert.Equal(t, "first", s)
	PutBuilder(again, Small)
}

func TestPoolSizes(t *testing.T) {
	for _, size := range []BuilderSize{Small, Medium, Large, BuilderSize(42)} {
		b := GetBuilder(size)
		assert.Zero(t, b.Len())
		assert.GreaterOrEqual(t, b.Cap(), 1024)
		PutBuilder(b, size)
	}
	PutBuilder(nil, Small)
}
