package openai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var encodings sync.Map // model -> *tiktoken.Tiktoken

// CountTokens 计算文本 Token 数
// 优先使用模型对应的编码，未知模型回退到 cl100k_base，编码不可用时按 4 字符 1 Token 估算
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if tkm := encodingFor(model); tkm != nil {
		return len(tkm.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

func encodingFor(model string) *tiktoken.Tiktoken {
	if v, ok := encodings.Load(model); ok {
		return v.(*tiktoken.Tiktoken)
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}
	encodings.Store(model, tkm)
	return tkm
}

func approxTokens(text string) int {
	n := (utf8.RuneCountInString(text) + 3) / 4
	if n == 0 {
		n = 1
	}
	return n
}
