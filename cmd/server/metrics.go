package main

import (
	"fmt"
	"net/http"

	"shipscore.ai/internal/persistence/indexdb"
	"shipscore.ai/internal/persistence/objstore"
	"shipscore.ai/internal/scorewatch"
	"shipscore.ai/internal/transport/ws"
)

type metricsSource interface {
	Metrics() ws.Metrics
}

func metricsHandler(srv metricsSource, holder *scorewatch.Holder, idx *indexdb.SQLiteIndex, mirror *objstore.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := srv.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP shipscore_rated_total Schematics rated successfully.\n")
		fmt.Fprintf(rw, "# TYPE shipscore_rated_total counter\n")
		fmt.Fprintf(rw, "shipscore_rated_total %d\n", m.Rated)

		fmt.Fprintf(rw, "# HELP shipscore_failed_total Rating requests that returned an error.\n")
		fmt.Fprintf(rw, "# TYPE shipscore_failed_total counter\n")
		fmt.Fprintf(rw, "shipscore_failed_total %d\n", m.Failed)

		fmt.Fprintf(rw, "# HELP shipscore_ws_sessions Open websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE shipscore_ws_sessions gauge\n")
		fmt.Fprintf(rw, "shipscore_ws_sessions %d\n", m.Sessions)

		if holder != nil {
			if t := holder.Table(); t != nil {
				fmt.Fprintf(rw, "# HELP shipscore_score_rules Rules in the active score table.\n")
				fmt.Fprintf(rw, "# TYPE shipscore_score_rules gauge\n")
				fmt.Fprintf(rw, "shipscore_score_rules{digest=%q} %d\n", t.Digest, len(t.Rules))
			}
		}

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP shipscore_index_queue_depth Pending index writes.\n")
			fmt.Fprintf(rw, "# TYPE shipscore_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "shipscore_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP shipscore_index_dropped_total Index writes dropped.\n")
			fmt.Fprintf(rw, "# TYPE shipscore_index_dropped_total counter\n")
			fmt.Fprintf(rw, "shipscore_index_dropped_total %d\n", st.DropTotal)
		}

		if mirror != nil {
			st := mirror.Stats()
			fmt.Fprintf(rw, "# HELP shipscore_mirror_uploaded_total Journal files uploaded.\n")
			fmt.Fprintf(rw, "# TYPE shipscore_mirror_uploaded_total counter\n")
			fmt.Fprintf(rw, "shipscore_mirror_uploaded_total %d\n", st.Uploaded)
			fmt.Fprintf(rw, "# HELP shipscore_mirror_failed_total Journal uploads that failed after retries.\n")
			fmt.Fprintf(rw, "# TYPE shipscore_mirror_failed_total counter\n")
			fmt.Fprintf(rw, "shipscore_mirror_failed_total %d\n", st.Failed)
		}
	}
}
