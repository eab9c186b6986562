package service

import (
	"errors"
	"fmt"
)

var (
	ErrAllBackendsFailed = errors.New("analysis failed, please retry: all model backends failed")
	ErrNoDocuments       = errors.New("no documents to preorganize")
	ErrConfiguration     = errors.New("configuration error")

	ErrNoBackendConfigured = fmt.Errorf("%w: no model backend configured", ErrConfiguration)
	ErrUnknownBackend      = fmt.Errorf("%w: requested backend is not configured", ErrConfiguration)

	ErrInvalidMode       = errors.New("invalid analysis mode")
	ErrNoAnalysisInput   = errors.New("analysis requires a preorganized result or documents")
	ErrReportNotReady    = errors.New("report not available for this session")
	ErrRenderUnavailable = errors.New("document renderer not configured")
	ErrUnsupportedFormat = errors.New("unsupported report format")
)
