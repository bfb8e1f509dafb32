package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type withGetID struct {
	id string
}

func (w withGetID) GetID() string { return w.id }

type withIDField struct {
	ID   string
	Name string
}

type withLowercaseIdField struct {
	Id   string
	Name string
}

type withNoID struct {
	Name string
}

func TestExtractIDIdentifiableCapability(t *testing.T) {
	id, err := ExtractID(withGetID{id: "a1"})
	assert.NoError(t, err)
	assert.Equal(t, "a1", id)
}

func TestExtractIDIdentifiableEmptyFails(t *testing.T) {
	_, err := ExtractID(withGetID{id: ""})
	assert.Error(t, err)
}

func TestExtractIDFieldFallback(t *testing.T) {
	id, err := ExtractID(withIDField{ID: "b2", Name: "x"})
	assert.NoError(t, err)
	assert.Equal(t, "b2", id)
}

func TestExtractIDLowercaseIdFieldFallback(t *testing.T) {
	id, err := ExtractID(withLowercaseIdField{Id: "c3"})
	assert.NoError(t, err)
	assert.Equal(t, "c3", id)
}

func TestExtractIDPointerToStruct(t *testing.T) {
	id, err := ExtractID(&withIDField{ID: "d4"})
	assert.NoError(t, err)
	assert.Equal(t, "d4", id)
}

func TestExtractIDNilPointerFails(t *testing.T) {
	var p *withIDField
	_, err := ExtractID(p)
	assert.Error(t, err)
}

func TestExtractIDNoResolvableFieldFails(t *testing.T) {
	_, err := ExtractID(withNoID{Name: "x"})
	assert.Error(t, err)
}

func TestExtractIDNonStructFails(t *testing.T) {
	_, err := ExtractID(42)
	assert.Error(t, err)
}
