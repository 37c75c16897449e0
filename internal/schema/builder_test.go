package schema

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultorm/internal/ir"
)

func libraryBuilder() *Builder {
	b := NewBuilder()
	b.Model("Author").Field("name")
	b.Model("Book").
		Field("title", Label("Title"), Default("untitled")).
		ForeignKey("author", "Author", RelatedName("books")).
		ManyToMany("tags", "Tag", RelatedName("books"))
	b.Model("Tag").Field("label")
	return b
}

func TestBuild_FieldsAndAutoID(t *testing.T) {
	reg, err := libraryBuilder().Build()
	require.NoError(t, err)

	book, ok := reg.Model("Book")
	require.True(t, ok)
	assert.Equal(t, []string{"title", "author", "id"}, book.FieldNames())

	title, ok := book.Field("title")
	require.True(t, ok)
	assert.Equal(t, "Title", title.Label)
	assert.True(t, title.HasDefault)
	assert.Equal(t, "untitled", title.Default)

	_, ok = book.Field("tags")
	assert.False(t, ok, "many-to-many fields are not stored")
}

func TestBuild_ExplicitIDKeepsPosition(t *testing.T) {
	b := NewBuilder()
	b.Model("Note").Field("id").Field("body")
	reg, err := b.Build()
	require.NoError(t, err)

	note, _ := reg.Model("Note")
	assert.Equal(t, []string{"id", "body"}, note.FieldNames())
}

func TestBuild_JunctionSynthesis(t *testing.T) {
	reg, err := libraryBuilder().Build()
	require.NoError(t, err)

	book, _ := reg.Model("Book")
	tags, ok := book.Relation("tags")
	require.True(t, ok)
	assert.Equal(t, ManyToMany, tags.Kind)
	assert.Equal(t, "BookTagsThrough", tags.Through)

	j, ok := reg.Model("BookTagsThrough")
	require.True(t, ok)
	assert.True(t, j.Junction)
	assert.Equal(t, []string{FromField, ToField, IDField}, j.FieldNames())

	from, _ := j.Relation(FromField)
	to, _ := j.Relation(ToField)
	assert.Equal(t, "Book", from.Target)
	assert.Equal(t, "Tag", to.Target)

	var names []string
	for _, m := range reg.Models() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Author", "Book", "BookTagsThrough", "Tag"}, names)
}

func TestBuild_ReverseMetadata(t *testing.T) {
	reg, err := libraryBuilder().Build()
	require.NoError(t, err)

	author, _ := reg.Model("Author")
	assert.Equal(t, []Reverse{{Name: "books", Model: "Book", Field: "author", Kind: ForeignKey}}, author.Reverse("books"))

	tag, _ := reg.Model("Tag")
	assert.Equal(t, []Reverse{{Name: "books", Model: "Book", Field: "tags", Kind: ManyToMany}}, tag.Reverse("books"))
	assert.Empty(t, tag.Reverse("missing"))
	assert.Empty(t, reg.Diagnostics())
}

func TestBuild_ReverseCollisionFansIn(t *testing.T) {
	logger, hook := test.NewNullLogger()

	b := NewBuilder().WithLogger(logger)
	b.Model("User").Field("name")
	b.Model("Post").ForeignKey("author", "User", RelatedName("items"))
	b.Model("Comment").ForeignKey("author", "User", RelatedName("items"))

	reg, err := b.Build()
	require.NoError(t, err)

	user, _ := reg.Model("User")
	entries := user.Reverse("items")
	require.Len(t, entries, 2)
	assert.Equal(t, "Post", entries[0].Model)
	assert.Equal(t, "Comment", entries[1].Model)
	assert.Equal(t, []string{"items"}, user.ReverseNames())

	diags := reg.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "User", diags[0].Model)
	assert.Equal(t, "items", diags[0].Name)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestBuild_RelatedNameShadowsField(t *testing.T) {
	b := NewBuilder()
	b.Model("User").Field("posts")
	b.Model("Post").ForeignKey("author", "User", RelatedName("posts"))

	reg, err := b.Build()
	require.NoError(t, err)
	require.Len(t, reg.Diagnostics(), 1)
	assert.Contains(t, reg.Diagnostics()[0].String(), "shadows")
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  string
	}{
		{
			name:  "unknown target",
			build: func(b *Builder) { b.Model("Book").ForeignKey("author", "Author") },
			want:  `unknown relation target "Author"`,
		},
		{
			name:  "duplicate field",
			build: func(b *Builder) { b.Model("Book").Field("title").Field("title") },
			want:  "declared twice",
		},
		{
			name: "junction name clash",
			build: func(b *Builder) {
				b.Model("Tag")
				b.Model("BookTagsThrough")
				b.Model("Book").ManyToMany("tags", "Tag")
			},
			want: `model "BookTagsThrough" declared twice`,
		},
		{
			name:  "related name on plain field",
			build: func(b *Builder) { b.Model("Book").Field("title", RelatedName("x")) },
			want:  "related name on a plain field",
		},
		{
			name:  "empty model name",
			build: func(b *Builder) { b.Model("") },
			want:  "empty model name",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder()
			tc.build(b)
			_, err := b.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestBuild_SelfReference(t *testing.T) {
	b := NewBuilder()
	b.Model("Employee").Field("name").ForeignKey("manager", "Employee", RelatedName("reports"))
	reg, err := b.Build()
	require.NoError(t, err)

	emp, _ := reg.Model("Employee")
	assert.Len(t, emp.Reverse("reports"), 1)
}

func TestJunctionName(t *testing.T) {
	assert.Equal(t, "BookAuthorsThrough", JunctionName("Book", "authors"))
	assert.Equal(t, "PostCoAuthorsThrough", JunctionName("Post", "coAuthors"))
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{ForeignKey, OneToOne, ManyToMany} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("has_many")
	assert.Error(t, err)
}

func TestDescribe_Golden(t *testing.T) {
	reg, err := libraryBuilder().Build()
	require.NoError(t, err)

	out, err := ir.MarshalCanonical(reg.Describe())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "library_schema", out)
}
