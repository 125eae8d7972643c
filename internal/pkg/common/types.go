package common

// ChatMessage OpenAI 相容的對話消息
type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ChatContent `json:"content"`
}

// ChatContent 消息內容片段（文字或圖片）
type ChatContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL 圖片 URL 結構（可為 data URL）
type ImageURL struct {
	URL string `json:"url"`
}

// TextContent 建立文字內容
func TextContent(text string) ChatContent {
	return ChatContent{Type: "text", Text: text}
}

// ImageContent 建立圖片內容
func ImageContent(url string) ChatContent {
	return ChatContent{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// UserMessage 建立使用者消息；imageURL 為空時只含文字
func UserMessage(prompt, imageURL string) ChatMessage {
	msg := ChatMessage{Role: "user", Content: []ChatContent{TextContent(prompt)}}
	if imageURL != "" {
		msg.Content = append(msg.Content, ImageContent(imageURL))
	}
	return msg
}

// Pagination 列表分頁參數
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize 套用預設值與上限
func (p Pagination) Normalize(defaultLimit, maxLimit int) Pagination {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
