// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package incentives

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/llm"
)

type countingClient struct{}

func (countingClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return "[]", nil
}

func TestWorkerFor_BuildsClientPerWorker(t *testing.T) {
	calls := 0
	svc := NewService(Deps{
		LLMFactory: func() (llm.Client, error) {
			calls++
			return countingClient{}, nil
		},
	})

	for i, level := range []string{program.LevelFederal, program.LevelState, program.LevelCity} {
		w := svc.workerFor(level, false)
		require.NotNil(t, w)
		assert.Equal(t, i+1, calls, "each worker gets its own client")
	}
}

func TestWorkerFor_DemoSkipsFactory(t *testing.T) {
	calls := 0
	svc := NewService(Deps{
		LLMFactory: func() (llm.Client, error) {
			calls++
			return countingClient{}, nil
		},
	})

	w := svc.workerFor(program.LevelFederal, true)
	require.NotNil(t, w)
	assert.Zero(t, calls, "demo sessions never touch the LLM")
}

func TestWorkerFor_FactoryFailureFallsBack(t *testing.T) {
	svc := NewService(Deps{
		LLMFactory: func() (llm.Client, error) {
			return nil, errors.New("no api key")
		},
	})

	// A broken factory must not stop the worker from being built.
	w := svc.workerFor(program.LevelState, false)
	assert.NotNil(t, w)
}
