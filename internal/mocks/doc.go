// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mocks holds gomock doubles used by package tests.
package mocks

//go:generate mockgen -destination=llm.go -package=mocks github.com/pdiddy/veritas/internal/llm Client
//go:generate mockgen -destination=search.go -package=mocks github.com/pdiddy/veritas/internal/search Backend
//go:generate mockgen -destination=job.go -package=mocks github.com/pdiddy/veritas/internal/job Runner
