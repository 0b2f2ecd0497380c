// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "context"

// A CompletionHandler handles a call to completion/complete, suggesting
// values for a prompt argument or a resource template variable.
type CompletionHandler func(ctx context.Context, req *CompleteRequest) (*CompleteResult, error)
