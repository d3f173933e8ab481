package jsontok

import (
	"errors"
	"testing"

	"github.com/danmuck/panelctl/internal/testutil/testlog"
)

func TestParseCommandShapes(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name  string
		input string
		want  int
	}{
		{name: "poll", input: `{"CMD":"POLL"}`, want: 3},
		{name: "get", input: `{"CMD":"GET","VAL":{"PAGE":2}}`, want: 7},
		{name: "set", input: `{ "CMD" : "SET", "VAL" : [ 0, 5 ] }`, want: 7},
		{name: "escaped", input: `{"CMD":"SET","VAL":[1,"a\"b\u00e9"]}`, want: 7},
		{name: "literals", input: `[true,false,null,-1.5e3]`, want: 5},
		{name: "top level primitive", input: `42`, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			toks := make([]Token, 32)
			n, err := Parse([]byte(tc.input), toks)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.input, err)
			}
			if n != tc.want {
				t.Fatalf("expected %d tokens, got %d", tc.want, n)
			}
		})
	}
}

func TestParseTokenLayout(t *testing.T) {
	testlog.Start(t)
	js := []byte(`{"CMD":"GET","VAL":{"PAGE":12}}`)
	toks := make([]Token, 8)
	n, err := Parse(js, toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	toks = toks[:n]
	if toks[0].Kind != KindObject || toks[0].Size != 2 {
		t.Fatalf("unexpected root: %+v", toks[0])
	}
	if !toks[1].Equal(js, "CMD") || toks[1].Size != 1 {
		t.Fatalf("unexpected key token: %+v", toks[1])
	}
	if !toks[2].Equal(js, "GET") || toks[2].Parent != 1 {
		t.Fatalf("unexpected value token: %+v", toks[2])
	}
	if toks[4].Kind != KindObject || toks[4].Size != 1 || toks[4].Parent != 3 {
		t.Fatalf("unexpected nested object: %+v", toks[4])
	}
	if toks[6].Kind != KindPrimitive || !toks[6].Equal(js, "12") {
		t.Fatalf("unexpected page token: %+v %q", toks[6], toks[6].Bytes(js))
	}
	if toks[0].End != len(js) {
		t.Fatalf("root end=%d want=%d", toks[0].End, len(js))
	}
}

func TestParseNoMemory(t *testing.T) {
	testlog.Start(t)
	js := []byte(`{"CMD":"GET","VAL":{"PAGE":2}}`)
	if _, err := Parse(js, make([]Token, 4)); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("expected ErrNoMemory, got %v", err)
	}
	if n, err := Parse(js, make([]Token, 7)); err != nil || n != 7 {
		t.Fatalf("expected exact fit, n=%d err=%v", n, err)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	cases := map[string]error{
		`{"CMD" "POLL"}`:        ErrInvalid,
		`{"CMD":"POLL",}`:       ErrInvalid,
		`{"CMD":"POLL"]`:        ErrInvalid,
		`{CMD:"POLL"}`:          ErrInvalid,
		`{"a":1 "b":2}`:         ErrInvalid,
		`{"a":01}`:              ErrInvalid,
		`{"a":tru}`:             ErrInvalid,
		`{"a":"\x"}`:            ErrInvalid,
		`{"a":1}{"b":2}`:        ErrInvalid,
		`[1,2`:                  ErrPartial,
		`{"CMD":"PO`:            ErrPartial,
		``:                      ErrPartial,
		"{\"a\":\"line\nbreak\"}": ErrInvalid,
	}
	for input, want := range cases {
		if _, err := Parse([]byte(input), make([]Token, 16)); !errors.Is(err, want) {
			t.Fatalf("input %q: expected %v, got %v", input, want, err)
		}
	}
}

func TestIteratorSkipsNestedSubtrees(t *testing.T) {
	testlog.Start(t)
	js := []byte(`{"a":{"x":[1,2,{"y":3}]},"b":[1,[2,3]],"c":4}`)
	toks := make([]Token, 32)
	n, err := Parse(js, toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	toks = toks[:n]

	var it Iterator
	count, err := it.Begin(toks, 0)
	if err != nil || count != 3 {
		t.Fatalf("begin: count=%d err=%v", count, err)
	}
	var keys []string
	for {
		idx, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, string(toks[idx].Bytes(js)))
	}
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	// "b" value is an array of two elements, the second one nested.
	var arr Iterator
	if count, err := arr.Begin(toks, 11); err != nil || count != 2 {
		t.Fatalf("begin array: count=%d err=%v", count, err)
	}
	first, _ := arr.Next()
	second, _ := arr.Next()
	if first != 12 || second != 13 {
		t.Fatalf("unexpected element indexes: %d %d", first, second)
	}
	if _, ok := arr.Next(); ok {
		t.Fatalf("expected iterator exhausted")
	}
}

func TestIteratorNotIterable(t *testing.T) {
	testlog.Start(t)
	js := []byte(`{"CMD":"POLL"}`)
	toks := make([]Token, 4)
	n, _ := Parse(js, toks)
	var it Iterator
	if _, err := it.Begin(toks[:n], 2); !errors.Is(err, ErrNotIterable) {
		t.Fatalf("expected ErrNotIterable, got %v", err)
	}
	if _, err := it.Begin(toks[:n], 9); !errors.Is(err, ErrNotIterable) {
		t.Fatalf("expected ErrNotIterable for out of range root, got %v", err)
	}
}

func TestIteratorEmptyContainer(t *testing.T) {
	testlog.Start(t)
	js := []byte(`{"VAL":{}}`)
	toks := make([]Token, 4)
	n, err := Parse(js, toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var it Iterator
	count, err := it.Begin(toks[:n], 2)
	if err != nil || count != 0 {
		t.Fatalf("begin: count=%d err=%v", count, err)
	}
	if _, ok := it.Next(); ok {
		t.Fatalf("expected no children")
	}
}

func TestUnquote(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		`plain`:            "plain",
		`a\"b`:             `a"b`,
		`tab\tnl\n`:        "tab\tnl\n",
		`\u00e9`:           "é",
		`\ud83d\ude00`:     "😀",
		`slash\/back\\`:    `slash/back\`,
	}
	for in, want := range cases {
		got, err := Unquote([]byte(in))
		if err != nil {
			t.Fatalf("unquote %q: %v", in, err)
		}
		if string(got) != want {
			t.Fatalf("unquote %q: got %q want %q", in, got, want)
		}
	}
	if _, err := Unquote([]byte(`\ud83d`)); err == nil {
		t.Fatalf("expected lone surrogate error")
	}
}
