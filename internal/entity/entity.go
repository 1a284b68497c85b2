// Package entity defines the data model shared by every stage of the
// indexing pipeline: code entities, their source locations, file
// snapshots, embedding records, relationships, and outbox entries.
package entity

import "time"

// EntityType enumerates the kinds of code entity the extractors emit.
type EntityType string

const (
	Function    EntityType = "function"
	Method      EntityType = "method"
	Class       EntityType = "class"
	Struct      EntityType = "struct"
	Interface   EntityType = "interface"
	Trait       EntityType = "trait"
	Impl        EntityType = "impl"
	Enum        EntityType = "enum"
	EnumVariant EntityType = "enum_variant"
	Module      EntityType = "module"
	Package     EntityType = "package"
	Constant    EntityType = "constant"
	Variable    EntityType = "variable"
	TypeAlias   EntityType = "type_alias"
	Macro       EntityType = "macro"
	Property    EntityType = "property"
	Union       EntityType = "union"
)

// Visibility is the access modifier of an entity, when the language has one.
type Visibility string

const (
	Public    Visibility = "public"
	Private   Visibility = "private"
	Protected Visibility = "protected"
	Internal  Visibility = "internal"
)

// Language identifies the source language an entity was extracted from.
type Language string

const (
	LangRust       Language = "rust"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangGo         Language = "go"
	LangUnknown    Language = "unknown"
)

// Location is a source span, 1-indexed on lines to match editor conventions.
type Location struct {
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
}

// FunctionSignature captures a callable's parameter and return shape.
type FunctionSignature struct {
	Parameters []Parameter
	ReturnType string
	IsAsync    bool
	Generics   []string
}

// Parameter is one entry of a FunctionSignature's parameter list.
type Parameter struct {
	Name string
	Type string
}

// Metadata holds the boolean flags and free-form attributes extractors
// attach to an entity. It is never nil on a constructed CodeEntity.
type Metadata struct {
	IsAsync       bool
	IsAbstract    bool
	IsStatic      bool
	IsConst       bool
	IsGeneric     bool
	GenericParams []string
	Decorators    []string
	Attributes    map[string]string
}

// RelationshipType enumerates the graph edge kinds.
type RelationshipType string

const (
	Contains         RelationshipType = "contains"
	Calls            RelationshipType = "calls"
	Implements       RelationshipType = "implements"
	Associates       RelationshipType = "associates"
	ExtendsInterface RelationshipType = "extends_interface"
	InheritsFrom     RelationshipType = "inherits_from"
	Uses             RelationshipType = "uses"
	Imports          RelationshipType = "imports"
)

// Relationship is a resolved or not-yet-resolved edge between entities.
//
// A Relationship is resolved when both endpoint IDs are known. An
// unresolved edge names the missing endpoint by qualified name and is
// completed later by the outbox processor (see internal/outbox).
// ToQualifiedName marks an outgoing stub (Calls, Uses, Imports, and
// the rest), carried by the source entity. FromQualifiedName marks an
// incoming stub (Contains): the child carries its parent's name, and
// the edge runs parent to child.
type Relationship struct {
	Type              RelationshipType
	FromEntityID      string
	FromQualifiedName string
	ToEntityID        string
	ToQualifiedName   string
	Properties        map[string]string
}

// Resolved reports whether both endpoints are already known entities.
func (r Relationship) Resolved() bool {
	return r.FromEntityID != "" && r.ToEntityID != ""
}

// CodeEntity is a named, locatable unit of code produced by extraction.
type CodeEntity struct {
	EntityID             string
	RepositoryID         string
	Name                 string
	QualifiedName        string
	ParentScope          string
	EntityType           EntityType
	FilePath             string
	Location             Location
	Visibility           Visibility
	HasVisibility        bool
	Language             Language
	Signature            *FunctionSignature
	Content              string
	DocumentationSummary string
	Metadata             Metadata
	Relationships        []Relationship
	DeletedAt            *time.Time
}

// EmbeddingInput is the text an extractor produced for an entity, used
// both as the content-addressing key and the provider input.
type EmbeddingInput struct {
	Entity CodeEntity
	Text   string
}

// FileSnapshot is the set of entity IDs currently belonging to one file.
type FileSnapshot struct {
	RepositoryID string
	FilePath     string
	EntityIDs    []string
	GitCommit    string
}

// SparseVector is a sparse embedding as parallel index/value slices.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// EmbeddingRecord is a content-addressed dense+sparse embedding pair.
type EmbeddingRecord struct {
	EmbeddingID int64
	ContentHash string
	Dense       []float32
	Sparse      *SparseVector
}

// OutboxOperation is the kind of change an OutboxEntry asks a target
// store to apply.
type OutboxOperation string

const (
	OpInsert OutboxOperation = "INSERT"
	OpUpdate OutboxOperation = "UPDATE"
	OpDelete OutboxOperation = "DELETE"
)

// TargetStore identifies which downstream store an OutboxEntry targets.
type TargetStore string

const (
	TargetVectorIndex TargetStore = "vector_index"
	TargetGraphIndex  TargetStore = "graph_index"
)

// OutboxEntry is one pending (or processed) fan-out operation, created
// in the same transaction as the metadata mutation that requires it.
type OutboxEntry struct {
	OutboxID       string
	RepositoryID   string
	EntityID       string
	Operation      OutboxOperation
	TargetStore    TargetStore
	Payload        []byte
	CollectionName string
	EmbeddingID    *int64
	RetryCount     int
	LastError      string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// Repository is a single indexed source tree.
type Repository struct {
	RepositoryID      string
	RootPath          string
	CollectionName    string
	LastIndexedCommit string
}
