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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the full HTTP surface on the engine.
func SetupRoutes(router *gin.Engine, svc *Service) {
	router.GET("/health", HealthCheck)
	router.GET("/usage", Usage(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/api/v1")
	{
		inc := v1.Group("/incentives")
		{
			inc.GET("/address-autocomplete", AddressAutocomplete())
			inc.POST("/discover", Discover(svc))
			inc.GET("/:sessionId/status", GetStatus(svc))
			inc.GET("/:sessionId/programs", GetPrograms(svc))
			inc.GET("/:sessionId/stream", StreamSession(svc))
			inc.POST("/:sessionId/shortlist", SubmitShortlist(svc))
			inc.GET("/:sessionId/roi-questions", GetROIQuestions(svc))
			inc.POST("/:sessionId/roi-answers", SubmitROIAnswers(svc))
			inc.GET("/:sessionId/roi-spreadsheet", DownloadSpreadsheet(svc))
		}
	}
}
