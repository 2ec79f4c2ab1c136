// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import "fmt"

// NewFactory returns a Factory for the named provider. Each call of the
// returned Factory builds an independent client so parallel discovery
// workers do not share state.
func NewFactory(provider string) (Factory, error) {
	switch provider {
	case "anthropic", "":
		return func() (Client, error) { return NewAnthropicClient() }, nil
	case "openai":
		return func() (Client, error) { return NewOpenAIClient() }, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", provider)
}
