// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "context"

// A PromptHandler handles a call to prompts/get.
type PromptHandler func(ctx context.Context, req *GetPromptRequest) (*GetPromptResult, error)

// A serverPrompt is a prompt definition bound to its handler, mirroring
// [serverTool]'s shape.
type serverPrompt struct {
	prompt  *Prompt
	handler PromptHandler
}

func newServerPrompt(p *Prompt, h PromptHandler) *serverPrompt {
	return &serverPrompt{prompt: p, handler: h}
}
