package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleLocation struct {
	Title string `json:"title" validate:"required,max=5"`
}

type sampleInput struct {
	Name     string          `json:"name" validate:"required"`
	Tags     []string        `json:"tags" validate:"required,dive,required,max=3"`
	Price    decimal.Decimal `json:"price" validate:"gt=0"`
	Location sampleLocation  `json:"location"`
	Photos   []string        `json:"photos" validate:"dive,image_url"`
}

func TestFlatten_DepthFirst(t *testing.T) {
	nodes := []Node{
		{Field: "a", Constraints: []string{"a1"}, Children: []Node{
			{Field: "b", Constraints: []string{"b1", "b2"}, Children: []Node{Field("c", "c1")}},
		}},
		Field("d", "d1"),
	}
	assert.Equal(t, []string{"a1", "b1", "b2", "c1", "d1"}, Flatten(nodes))
	assert.Empty(t, Flatten(nil))
}

func TestStruct_Valid(t *testing.T) {
	in := sampleInput{
		Name:     "x",
		Tags:     []string{"ok"},
		Price:    decimal.NewFromInt(10),
		Location: sampleLocation{Title: "home"},
		Photos:   []string{"https://cdn.example.com/a.JPG"},
	}
	assert.Nil(t, Struct(in))
	assert.NoError(t, Validate(in))
}

func TestStruct_BuildsTree(t *testing.T) {
	in := sampleInput{
		Tags:     []string{"ok", "toolong"},
		Price:    decimal.Zero,
		Location: sampleLocation{Title: "far too long"},
		Photos:   []string{"https://cdn.example.com/readme.txt"},
	}
	nodes := Struct(in)
	require.NotEmpty(t, nodes)

	byField := map[string]Node{}
	for _, n := range nodes {
		byField[n.Field] = n
	}
	assert.Equal(t, []string{"name should not be empty"}, byField["name"].Constraints)
	require.Len(t, byField["tags"].Children, 1)
	assert.Equal(t, "1", byField["tags"].Children[0].Field)
	assert.Equal(t, []string{"price must be greater than 0"}, byField["price"].Constraints)
	require.Len(t, byField["location"].Children, 1)
	assert.Equal(t, "title", byField["location"].Children[0].Field)

	msgs := Flatten(nodes)
	assert.Contains(t, msgs, "tags[1] must be shorter than or equal to 3 characters")
	assert.Contains(t, msgs, "title must be shorter than or equal to 5 characters")
	assert.Contains(t, msgs, "photos[0] must be an image URL")
}

func TestError_WrapsAndUnwraps(t *testing.T) {
	assert.Nil(t, NewError(nil))

	err := fmt.Errorf("create value: %w", NewError([]Node{Field("value", "value should not be empty")}))
	ve, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"value should not be empty"}, ve.Messages())
	assert.Contains(t, err.Error(), "validation failed: value should not be empty")

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsImageURL(t *testing.T) {
	assert.True(t, IsImageURL("https://x/y.png"))
	assert.True(t, IsImageURL("https://x/y.jpeg?w=200"))
	assert.False(t, IsImageURL("https://x/y.pdf"))
	assert.False(t, IsImageURL("https://x/png"))
}

func TestSplitNamespace(t *testing.T) {
	assert.Equal(t, []string{"value", "2", "title"}, splitNamespace("Input.value[2].title"))
	assert.Equal(t, []string{"name"}, splitNamespace("Input.name"))
}
