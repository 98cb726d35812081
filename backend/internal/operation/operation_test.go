package operation

import (
	"errors"
	"fmt"
	"testing"
)

func strptr(s string) *string { return &s }

func TestApply_InsertMiddle(t *testing.T) {
	op := Operation{Kind: KindInsert, FromPos: 5, ToPos: 5, Content: strptr(" collaborative")}
	got, err := Apply("Hello world", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := "Hello collaborative world"
	if got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestApply_InsertIntoEmpty(t *testing.T) {
	op := Operation{Kind: KindInsert, FromPos: 0, ToPos: 0, Content: strptr("Hi")}
	got, err := Apply("", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "Hi" {
		t.Fatalf("Apply() = %q, want %q", got, "Hi")
	}
}

func TestApply_InsertPositionsMustMatch(t *testing.T) {
	op := Operation{Kind: KindInsert, FromPos: 1, ToPos: 2, Content: strptr("x")}
	if _, err := Apply("abc", op); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("error = %v, want ErrInvalidRange", err)
	}
}

func TestApply_InsertMissingContent(t *testing.T) {
	op := Operation{Kind: KindInsert, FromPos: 0, ToPos: 0}
	if _, err := Apply("abc", op); !errors.Is(err, ErrMissingField) {
		t.Fatalf("error = %v, want ErrMissingField", err)
	}
}

func TestApply_DeleteRange(t *testing.T) {
	op := Operation{Kind: KindDelete, FromPos: 5, ToPos: 19}
	got, err := Apply("Hello collaborative world", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "Hello world" {
		t.Fatalf("Apply() = %q, want %q", got, "Hello world")
	}
}

func TestApply_DeleteEmptyRangeRejected(t *testing.T) {
	op := Operation{Kind: KindDelete, FromPos: 3, ToPos: 3}
	if _, err := Apply("abcdef", op); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("error = %v, want ErrInvalidRange", err)
	}
}

func TestApply_ReplaceExample(t *testing.T) {
	// "Hello world" -> "Hello there"
	op := Operation{Kind: KindReplace, FromPos: 6, ToPos: 11, Content: strptr("there")}
	got, err := Apply("Hello world", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "Hello there" {
		t.Fatalf("Apply() = %q, want %q", got, "Hello there")
	}
}

func TestApply_OutOfBounds(t *testing.T) {
	cases := []Operation{
		{Kind: KindInsert, FromPos: 4, ToPos: 4, Content: strptr("x")},
		{Kind: KindDelete, FromPos: 0, ToPos: 4},
		{Kind: KindReplace, FromPos: 0, ToPos: 4, Content: strptr("x")},
		{Kind: KindFormat, FromPos: 0, ToPos: 4, Marks: map[string]bool{"bold": true}},
	}
	for _, op := range cases {
		if _, err := Apply("abc", op); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("op %s: error = %v, want ErrInvalidRange", op.Kind, err)
		}
	}
}

func TestApply_UnknownKind(t *testing.T) {
	op := Operation{Kind: Kind("move"), FromPos: 0, ToPos: 1}
	if _, err := Apply("abc", op); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("error = %v, want ErrUnknownKind", err)
	}
}

func TestApply_FormatBold(t *testing.T) {
	op := Operation{Kind: KindFormat, FromPos: 0, ToPos: 5, Marks: map[string]bool{"bold": true}}
	got, err := Apply("Hello world", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "**Hello** world" {
		t.Fatalf("Apply() = %q, want %q", got, "**Hello** world")
	}
}

func TestApply_FormatOrderBoldItalicCode(t *testing.T) {
	// 多个标记按 bold -> italic -> code 的固定顺序包裹
	op := Operation{Kind: KindFormat, FromPos: 0, ToPos: 2,
		Marks: map[string]bool{"bold": true, "italic": true, "code": true}}
	got, err := Apply("hi", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := "`***hi***`"
	if got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestApply_FormatBluntStrip(t *testing.T) {
	// mark=false 是“钝器”式删除：去掉选区内所有该定界符的出现，
	// 包括选区里原本就有的，不做配对解析。这是有意保留的行为。
	content := "**a** and **b**"
	op := Operation{Kind: KindFormat, FromPos: 0, ToPos: 15, Marks: map[string]bool{"bold": false}}
	got, err := Apply(content, op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "a and b" {
		t.Fatalf("Apply() = %q, want %q", got, "a and b")
	}
}

func TestApply_FormatBoldThenUnbold(t *testing.T) {
	bold := Operation{Kind: KindFormat, FromPos: 0, ToPos: 5, Marks: map[string]bool{"bold": true}}
	after, err := Apply("Hello", bold)
	if err != nil {
		t.Fatalf("Apply(bold) error = %v", err)
	}
	if after != "**Hello**" {
		t.Fatalf("Apply(bold) = %q", after)
	}
	unbold := Operation{Kind: KindFormat, FromPos: 0, ToPos: 9, Marks: map[string]bool{"bold": false}}
	got, err := Apply(after, unbold)
	if err != nil {
		t.Fatalf("Apply(unbold) error = %v", err)
	}
	if got != "Hello" {
		t.Fatalf("Apply(unbold) = %q, want %q", got, "Hello")
	}
}

func TestApply_FormatMissingMarks(t *testing.T) {
	op := Operation{Kind: KindFormat, FromPos: 0, ToPos: 1}
	if _, err := Apply("abc", op); !errors.Is(err, ErrMissingField) {
		t.Fatalf("error = %v, want ErrMissingField", err)
	}
}

func TestApply_InsertDeleteRoundTrip(t *testing.T) {
	original := "The quick brown fox"
	text := " very"
	ins := Operation{Kind: KindInsert, FromPos: 3, ToPos: 3, Content: strptr(text)}
	inserted, err := Apply(original, ins)
	if err != nil {
		t.Fatalf("Apply(insert) error = %v", err)
	}
	del := Operation{Kind: KindDelete, FromPos: 3, ToPos: 3 + len([]rune(text))}
	got, err := Apply(inserted, del)
	if err != nil {
		t.Fatalf("Apply(delete) error = %v", err)
	}
	if got != original {
		t.Fatalf("round trip = %q, want %q", got, original)
	}
}

func TestApply_RuneOffsets(t *testing.T) {
	// 偏移按字符计，不是字节；中文每个字是 3 个字节但只占 1 个偏移
	op := Operation{Kind: KindReplace, FromPos: 2, ToPos: 4, Content: strptr("世界")}
	got, err := Apply("你好文档", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "你好世界" {
		t.Fatalf("Apply() = %q, want %q", got, "你好世界")
	}
}

func TestApply_Deterministic(t *testing.T) {
	op := Operation{Kind: KindFormat, FromPos: 0, ToPos: 5,
		Marks: map[string]bool{"bold": true, "code": false}}
	first, err := Apply("Hello world", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := Apply("Hello world", op)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if got != first {
			t.Fatalf("Apply() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestApply_ErrorLeavesInputUsable(t *testing.T) {
	content := "abc"
	op := Operation{Kind: KindDelete, FromPos: 0, ToPos: 10}
	if _, err := Apply(content, op); err == nil {
		t.Fatalf("expected error")
	}
	// 出错后原内容仍可用（纯函数不会部分修改）
	if content != "abc" {
		t.Fatalf("content mutated: %q", content)
	}
}

func ExampleApply() {
	op := Operation{Kind: KindReplace, FromPos: 6, ToPos: 11, Content: strptr("there")}
	out, _ := Apply("Hello world", op)
	fmt.Println(out)
	// Output: Hello there
}
