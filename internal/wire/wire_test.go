package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/prevail/internal/codec"
	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/testutil"
)

func TestMarshalCanonical_SortsKeysByUTF16(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00, so it sorts before
	// U+E000 in UTF-16 but after it in UTF-8 byte order.
	data, err := MarshalCanonical(map[string]any{
		"b":          int64(1),
		"a":          "x",
		"\uE000":     false,
		"\U0001F600": true,
		"nested":     map[string]any{"z": 1, "y": []any{"<&>", int64(2)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"x\",\"b\":1,\"nested\":{\"y\":[\"<&>\",2],\"z\":1},\"\U0001F600\":true,\"\uE000\":false}", string(data))
}

func TestMarshalCanonical_Strings(t *testing.T) {
	data, err := MarshalCanonical("line sep\u2028")
	require.NoError(t, err)
	assert.Equal(t, "\"line sep\u2028\"", string(data))

	data, err = MarshalCanonical(`literal \u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"literal \\u2028"`, string(data), "escaped backslash stays escaped")

	data, err = MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(data), "NFC normalized")

	data, err = MarshalCanonical([]byte{0xca, 0xfe})
	require.NoError(t, err)
	assert.Equal(t, `"cafe"`, string(data))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	for _, v := range []any{nil, 1.5, float32(2), map[string]any{"k": nil}, []any{3.0}, struct{}{}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%#v", v)
	}
}

func TestCommandID(t *testing.T) {
	id, err := CommandID(1, "save", "Book", 42, []byte("payload"))
	require.NoError(t, err)
	assert.Len(t, id, 64)

	again, err := CommandID(1, "save", "Book", 42, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, id, again, "ids are deterministic")

	for _, other := range []func() (string, error){
		func() (string, error) { return CommandID(2, "save", "Book", 42, []byte("payload")) },
		func() (string, error) { return CommandID(1, "delete", "Book", 42, []byte("payload")) },
		func() (string, error) { return CommandID(1, "save", "Author", 42, []byte("payload")) },
		func() (string, error) { return CommandID(1, "save", "Book", 43, []byte("payload")) },
		func() (string, error) { return CommandID(1, "save", "Book", 42, []byte("payloaD")) },
	} {
		got, err := other()
		require.NoError(t, err)
		assert.NotEqual(t, id, got)
	}
}

func TestHashWithDomain_Separates(t *testing.T) {
	assert.NotEqual(t, hashWithDomain("a", []byte("bc")), hashWithDomain("ab", []byte("c")))
}

func TestGraph_RoundTripKeepsCyclesAndSharing(t *testing.T) {
	reg := testutil.Registry()
	for _, c := range []codec.Codec{codec.MsgPack, codec.BSON} {
		t.Run(c.Name(), func(t *testing.T) {
			pub := &testutil.Publisher{Name: "Chilton"}
			author := &testutil.Author{Name: "Herbert", Email: testutil.Str("fh@example.com"), Tags: []string{"sf"}}
			dune := &testutil.Book{Title: "Dune", Year: 1965, Author: author, Publisher: pub}
			messiah := &testutil.Book{Title: "Dune Messiah", Year: 1969, Author: author, Publisher: pub}
			author.Books = []*testutil.Book{dune, messiah}
			at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			schema.Attach(pub, 7, at)

			doc, err := EncodeGraph(reg, c, dune)
			require.NoError(t, err)
			assert.Len(t, doc.Nodes, 4, "every instance once")

			data, err := Marshal(c, doc)
			require.NoError(t, err)
			decoded, used, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, c.Name(), used.Name())

			root, err := DecodeGraph(reg, used, decoded)
			require.NoError(t, err)
			got := root.(*testutil.Book)

			assert.Equal(t, "Dune", got.Title)
			assert.Equal(t, 1965, got.Year)
			require.NotNil(t, got.Author)
			assert.Equal(t, "Herbert", got.Author.Name)
			assert.Equal(t, "fh@example.com", *got.Author.Email)
			assert.Equal(t, []string{"sf"}, got.Author.Tags)
			require.Len(t, got.Author.Books, 2)
			assert.Same(t, got, got.Author.Books[0], "cycle closes on the same instance")
			assert.Same(t, got.Publisher, got.Author.Books[1].Publisher, "shared target decoded once")

			assert.True(t, got.Publisher.IsPersistent())
			assert.Equal(t, schema.ID(7), got.Publisher.ObjectID())
			assert.True(t, got.Publisher.CreatedAt().Equal(at))
			assert.False(t, got.IsPersistent())
			assert.True(t, got.CreatedAt().IsZero())
		})
	}
}

func TestGraph_OmitsEmptyReferences(t *testing.T) {
	reg := testutil.Registry()
	doc, err := EncodeGraph(reg, codec.MsgPack, &testutil.Book{Title: "Alone"})
	require.NoError(t, err)
	require.Len(t, doc.Nodes, 1)
	assert.Empty(t, doc.Nodes[0].Edges)
}

func TestGraph_EncodeUnregistered(t *testing.T) {
	reg := schema.NewRegistry()
	_, err := EncodeGraph(reg, codec.MsgPack, &testutil.Book{})
	assert.Error(t, err)
}

func TestGraph_DecodeRejectsBadDocuments(t *testing.T) {
	reg := testutil.Registry()
	body, err := codec.MsgPack.Marshal(&testutil.Book{Title: "x"})
	require.NoError(t, err)
	pubBody, err := codec.MsgPack.Marshal(&testutil.Publisher{Name: "p"})
	require.NoError(t, err)

	cases := map[string]*Document{
		"empty":         {},
		"root range":    {Root: 3, Nodes: []Node{{Type: "Book", Body: body}}},
		"unknown type":  {Nodes: []Node{{Type: "Film", Body: body}}},
		"bad body":      {Nodes: []Node{{Type: "Book", Body: []byte{0xc1}}}},
		"unknown field": {Nodes: []Node{{Type: "Book", Body: body, Edges: []Edge{{Field: "Title", Targets: []int{0}}}}}},
		"target range":  {Nodes: []Node{{Type: "Book", Body: body, Edges: []Edge{{Field: "Publisher", Targets: []int{5}}}}}},
		"wrong target":  {Nodes: []Node{{Type: "Book", Body: body, Edges: []Edge{{Field: "Author", Targets: []int{1}}}}, {Type: "Publisher", Body: pubBody}}},
		"two targets":   {Nodes: []Node{{Type: "Book", Body: body, Edges: []Edge{{Field: "Publisher", Targets: []int{1, 1}}}}, {Type: "Publisher", Body: pubBody}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeGraph(reg, codec.MsgPack, doc)
			assert.Error(t, err)
		})
	}
}

func TestTarget_RoundTrip(t *testing.T) {
	data, err := MarshalTarget(codec.BSON, Target{Type: "Book", ID: 9})
	require.NoError(t, err)
	got, err := UnmarshalTarget(data)
	require.NoError(t, err)
	assert.Equal(t, Target{Type: "Book", ID: 9}, got)

	_, err = UnmarshalTarget([]byte("junk"))
	assert.Error(t, err)
}
