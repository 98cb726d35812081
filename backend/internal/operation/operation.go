package operation

import (
	"errors"
	"fmt"
	"strings"
)

// 操作类型：封闭的枚举，新增类型必须同时扩展 Apply 的 switch
type Kind string

const (
	KindInsert  Kind = "insert"
	KindDelete  Kind = "delete"
	KindFormat  Kind = "format"
	KindReplace Kind = "replace"
)

var (
	ErrInvalidRange = errors.New("INVALID_RANGE")
	ErrMissingField = errors.New("MISSING_FIELD")
	ErrUnknownKind  = errors.New("UNKNOWN_KIND")
)

// Operation 描述一次原子文本编辑。
// FromPos/ToPos 是针对“操作前内容”的字符（rune）偏移，不是字节偏移。
// Content 用指针区分“缺失”和“空字符串”（insert 空串是合法的）。
type Operation struct {
	Kind        Kind            `json:"type" binding:"required"`
	FromPos     int             `json:"from_pos" binding:"min=0"`
	ToPos       int             `json:"to_pos" binding:"min=0"`
	Content     *string         `json:"content,omitempty"`
	Marks       map[string]bool `json:"marks,omitempty"`
	BaseVersion uint64          `json:"base_version"`
}

// Markdown 风格的格式标记，按固定顺序 bold -> italic -> code 处理
var markOrder = []struct {
	name      string
	delimiter string
}{
	{"bold", "**"},
	{"italic", "*"},
	{"code", "`"},
}

// Apply 把一个操作应用到内容上，返回新内容或校验错误。
// 纯函数：不做任何 I/O，相同输入必然得到相同输出；
// 出错时原内容不受影响（调用方持有的字符串本来就不可变）。
func Apply(content string, op Operation) (string, error) {
	r := []rune(content)

	switch op.Kind {
	case KindInsert:
		if op.Content == nil {
			return "", fmt.Errorf("%w: insert 操作必须提供 content", ErrMissingField)
		}
		if op.FromPos != op.ToPos {
			return "", fmt.Errorf("%w: insert 操作的 from_pos 和 to_pos 必须相等", ErrInvalidRange)
		}
		if err := checkBounds(op.FromPos, op.ToPos, len(r)); err != nil {
			return "", err
		}
		return applyInsert(r, op.FromPos, *op.Content), nil

	case KindDelete:
		if err := checkRange(op.FromPos, op.ToPos, len(r)); err != nil {
			return "", err
		}
		return string(r[:op.FromPos]) + string(r[op.ToPos:]), nil

	case KindFormat:
		if op.Marks == nil {
			return "", fmt.Errorf("%w: format 操作必须提供 marks", ErrMissingField)
		}
		if err := checkRange(op.FromPos, op.ToPos, len(r)); err != nil {
			return "", err
		}
		return applyFormat(r, op.FromPos, op.ToPos, op.Marks), nil

	case KindReplace:
		if op.Content == nil {
			return "", fmt.Errorf("%w: replace 操作必须提供 content", ErrMissingField)
		}
		if err := checkRange(op.FromPos, op.ToPos, len(r)); err != nil {
			return "", err
		}
		return string(r[:op.FromPos]) + *op.Content + string(r[op.ToPos:]), nil

	default:
		return "", fmt.Errorf("%w: 不支持的操作类型 %q", ErrUnknownKind, op.Kind)
	}
}

func applyInsert(r []rune, pos int, text string) string {
	return string(r[:pos]) + text + string(r[pos:])
}

// applyFormat 对 [from, to) 的选区做标记处理后拼回原文。
// mark=true 时用定界符包裹选区；mark=false 时粗暴地删掉选区内
// 该定界符的所有出现（包括原本就存在的），不做配对解析。
// 这是有意保留的行为，不是 bug，详见测试。
func applyFormat(r []rune, from, to int, marks map[string]bool) string {
	selected := string(r[from:to])
	for _, m := range markOrder {
		v, ok := marks[m.name]
		if !ok {
			continue
		}
		if v {
			selected = m.delimiter + selected + m.delimiter
		} else {
			selected = strings.ReplaceAll(selected, m.delimiter, "")
		}
	}
	return string(r[:from]) + selected + string(r[to:])
}

// checkRange 校验半开区间 [from, to)：要求 from < to 且 to 不越界
func checkRange(from, to, length int) error {
	if from >= to {
		return fmt.Errorf("%w: from_pos %d 必须小于 to_pos %d", ErrInvalidRange, from, to)
	}
	return checkBounds(from, to, length)
}

func checkBounds(from, to, length int) error {
	if from < 0 || to < 0 {
		return fmt.Errorf("%w: 位置不能为负数", ErrInvalidRange)
	}
	if to > length {
		return fmt.Errorf("%w: 位置 %d 超出文档长度 %d", ErrInvalidRange, to, length)
	}
	return nil
}
