/*
Package log provides structured logging via zerolog: a package-level global
Logger, an Init(Config) entry point selecting level and JSON/console output,
and component-scoped child loggers for the long-running pieces of the
catalog (the Catalog Manager's refresh loop, the background coalescing
timer, the cluster RPC subscriber).

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("catalog manager starting")

	mgrLog := log.WithComponent("catalogmgr")
	mgrLog.Info().Str("collection", "buckets").Msg("refresh completed")

	chunkLog := log.WithChunkID(chunk.ID)
	chunkLog.Warn().Msg("fragment unavailable")

# Context loggers

  - WithComponent: tag logs with the emitting subsystem.
  - WithCollection: tag logs with the catalog collection involved.
  - WithChunkID: tag logs with the chunk a placement decision concerns.
  - WithSystemID: tag logs with the tenant system involved.

# Levels

Debug is for development; Info is the default production level; Warn and
Error should stay low-volume. Fatal logs and calls os.Exit(1) — reserve it
for startup failures the process cannot run without (e.g. a document store
that never responds to its first connection attempt).
*/
package log
