package api

const (
	postCommandMaxSize = 64 * 1024 // 64 KiB
	postJobMaxSize     = 4 * 1024
)

// Route names used for metrics and spans.
const (
	routeTasks     = "/api/tasks"
	routeCommands  = "/api/commands"
	routeJobs      = "/api/jobs"
	routeJob       = "/api/jobs/:id"
	routeJobResult = "/api/jobs/:id/result"
)
