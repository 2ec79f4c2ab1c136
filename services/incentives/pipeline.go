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
	"fmt"
	"time"

	"github.com/hirelift/hirelift/services/incentives/dag"
	"github.com/hirelift/hirelift/services/incentives/discovery"
	"github.com/hirelift/hirelift/services/incentives/join"
	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/incentives/router"
)

const (
	joinNodeName     = "join"
	validateNodeName = "validate"

	workerNodeTimeout = 5 * time.Minute
)

// workerNodeName returns the pipeline node name for a government level,
// e.g. "federal_discovery".
func workerNodeName(level string) string {
	return level + "_discovery"
}

// buildPipeline assembles the per-session discovery graph: one worker
// node per routed government level fanning in to a join node, followed
// by a validate node. Worker nodes write their results into the session
// as they finish so the status endpoint sees partial progress; the
// graph's data flow carries the same results to the join.
func (s *Service) buildPipeline(sess *Session, route router.Result) (*dag.DAG, error) {
	loc := discovery.Location{
		StateName:  route.StateName,
		CountyName: route.CountyName,
		CityName:   route.CityName,
	}
	params := discovery.Params{
		SessionID:       sess.ID(),
		Location:        loc,
		Address:         sess.Address(),
		LegalEntityType: sess.LegalEntityType(),
		IndustryCode:    sess.IndustryCode(),
	}

	builder := dag.NewBuilder("incentive_discovery")
	workerNodes := make([]string, 0, len(route.GovernmentLevels))
	for _, level := range route.GovernmentLevels {
		level := level
		worker := s.workerFor(level, sess.DemoMode())
		name := workerNodeName(level)
		workerNodes = append(workerNodes, name)
		builder.AddNode(dag.NewFuncNode(name, nil, func(ctx context.Context, _ map[string]any) (any, error) {
			sess.StartLevel(level)
			found, err := worker.Discover(ctx, params)
			if err != nil {
				return nil, err
			}
			sess.AppendPrograms(level, found)
			return found, nil
		}).WithTimeout(workerNodeTimeout))
	}

	builder.AddNode(dag.NewFuncNode(joinNodeName, workerNodes, func(_ context.Context, inputs map[string]any) (any, error) {
		var all []program.Program
		for _, name := range workerNodes {
			progs, ok := inputs[name].([]program.Program)
			if !ok {
				return nil, fmt.Errorf("%w: unexpected output from %s", dag.ErrInvalidInput, name)
			}
			all = append(all, progs...)
		}
		merged := join.Merge(all)
		sess.SetMerged(merged)
		return merged, nil
	}))

	builder.AddNode(dag.NewFuncNode(validateNodeName, []string{joinNodeName}, func(_ context.Context, inputs map[string]any) (any, error) {
		merged, ok := inputs[joinNodeName].([]program.Program)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected output from %s", dag.ErrInvalidInput, joinNodeName)
		}
		validated, errs := join.Validate(merged)
		sess.SetValidated(validated, errs)
		return validated, nil
	}))

	return builder.Build()
}
