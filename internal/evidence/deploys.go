package evidence

import (
	"fmt"
	"time"

	"github.com/moolen/tripwire/internal/incident"
)

// Deploy is a rollout recorded by the delivery pipeline.
type Deploy struct {
	Service       string    `json:"service" yaml:"service"`
	Type          string    `json:"deploy_type" yaml:"deploy_type"`
	Artifact      string    `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	CommitSHA     string    `json:"commit_sha" yaml:"commit_sha"`
	Version       string    `json:"version" yaml:"version"`
	DeployedAt    time.Time `json:"deployed_at" yaml:"deployed_at"`
	DeployedBy    string    `json:"deployed_by" yaml:"deployed_by"`
	Status        string    `json:"status" yaml:"status"`
	ChangeSummary string    `json:"change_summary" yaml:"change_summary"`
}

// Diff is the change shipped with a deploy.
type Diff struct {
	Service      string `json:"service" yaml:"service"`
	CommitSHA    string `json:"commit_sha" yaml:"commit_sha"`
	Diff         string `json:"diff" yaml:"diff"`
	FilesChanged int    `json:"files_changed" yaml:"files_changed"`
	LinesAdded   int    `json:"lines_added" yaml:"lines_added"`
	LinesRemoved int    `json:"lines_removed" yaml:"lines_removed"`
}

const (
	checkoutConfigSHA  = "cf9a12d"
	checkoutDeployLead = 15 * time.Minute
	gatewayDeployLead  = 4 * time.Hour
)

var diffs = map[string]string{
	"checkout-service": `diff --git a/config/db.yaml b/config/db.yaml
--- a/config/db.yaml
+++ b/config/db.yaml
@@ -3,8 +3,8 @@ database:
   host: postgres-primary.internal
   port: 5432
   pool:
-    max_connections: 20
+    max_connections: 2        # COST-OPT: reduced pool size
-    connection_timeout_ms: 30000
+    connection_timeout_ms: 5000  # COST-OPT: tighter timeout
   query_timeout_ms: 10000
`,
	"api-gateway": `diff --git a/src/pool.js
-  maxConnections: 50
+  maxConnections: 10  // reduced for cost savings
`,
}

const noopDiff = `diff --git a/src/main
- // no significant changes
+ // minor refactor
`

// Deploys lists the deploys preceding triggeredAt: the checkout DB pool config
// change 15 minutes earlier and an api-gateway rollout 4 hours earlier.
func (c *Collector) Deploys(triggeredAt time.Time) []Deploy {
	r := newRand(c.seed, "deploys", timeKey(triggeredAt))
	return []Deploy{
		{
			Service:       "checkout-service",
			Type:          "config",
			Artifact:      "checkout-service-config",
			CommitSHA:     checkoutConfigSHA,
			Version:       "v2.4.1",
			DeployedAt:    triggeredAt.Add(-checkoutDeployLead),
			DeployedBy:    "ci-pipeline",
			Status:        "success",
			ChangeSummary: "Tuned DB pool settings for 'cost optimisation' initiative",
		},
		{
			Service:       "api-gateway",
			Type:          "service",
			CommitSHA:     fmt.Sprintf("a%db", between(r, 100000, 999999)),
			Version:       fmt.Sprintf("v3.%d.%d", between(r, 1, 4), between(r, 0, 10)),
			DeployedAt:    triggeredAt.Add(-gatewayDeployLead),
			DeployedBy:    "ci-pipeline",
			Status:        "success",
			ChangeSummary: "Bumped rate limiter defaults",
		},
	}
}

// DeploysIn returns the deploys that happened within window.
func DeploysIn(deploys []Deploy, window incident.Window) []Deploy {
	in := []Deploy{}
	for _, d := range deploys {
		if window.Contains(d.DeployedAt) {
			in = append(in, d)
		}
	}
	return in
}

// CodeDiff returns the change shipped by sha. Services without a recorded
// change get a no-op diff.
func (c *Collector) CodeDiff(service, sha string) Diff {
	diff, ok := diffs[service]
	if !ok {
		diff = noopDiff
	}
	r := newRand(c.seed, "diff", service, sha)
	return Diff{
		Service:      service,
		CommitSHA:    sha,
		Diff:         diff,
		FilesChanged: between(r, 1, 5),
		LinesAdded:   between(r, 5, 50),
		LinesRemoved: between(r, 5, 30),
	}
}
