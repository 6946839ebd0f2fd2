// Package logging provides structured logging with OpenTelemetry integration.
//
// It wraps Zap with a Trace level below Debug, stderr and OpenTelemetry
// outputs, context field injection (trace_id, span_id, request.id) and
// redaction of credential-like fields.
//
// Library packages take a plain *zap.Logger; commands build a Logger and hand
// Underlying() to them:
//
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	engine, err := chatbot.NewEngine(engineCfg, embedder, index, catalog, logger.Underlying())
//
// Question text is health information. It is only ever logged at debug level.
package logging
