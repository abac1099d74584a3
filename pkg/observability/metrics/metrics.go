package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    RouteDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "spantree",
        Name:      "route_decisions_total",
        Help:      "Total routing decisions taken, by descriptor class",
    }, []string{"class"})

    RouteDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "spantree",
        Name:      "route_dropped_total",
        Help:      "Total commands not propagated, by drop reason",
    }, []string{"reason"})

    LinkWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "spantree",
        Name:      "link_writes_total",
        Help:      "Total lines enqueued on peer links, by delivery primitive",
    }, []string{"primitive"})

    LinkWriteErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "spantree",
        Name:      "link_write_errors_total",
        Help:      "Total lines that could not be enqueued on a peer link",
    }, []string{"primitive"})

    Servers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "spantree",
        Name:      "servers",
        Help:      "Number of servers in the local spanning tree, including this one",
    })

    DirectPeers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "spantree",
        Name:      "direct_peers",
        Help:      "Number of directly linked servers",
    })

    LinksActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "spantree",
        Subsystem: "transport",
        Name:      "links_active",
        Help:      "Number of open transport links",
    })

    LinkDials = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "spantree",
        Subsystem: "transport",
        Name:      "dials_total",
        Help:      "Total outbound link dials",
    }, []string{"result"})

    Netsplits = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "spantree",
        Name:      "netsplit_servers_total",
        Help:      "Total servers removed from the tree by link loss or SQUIT",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(RouteDecisions)
        prometheus.MustRegister(RouteDropped)
        prometheus.MustRegister(LinkWrites)
        prometheus.MustRegister(LinkWriteErrors)
        prometheus.MustRegister(Servers)
        prometheus.MustRegister(DirectPeers)
        prometheus.MustRegister(LinksActive)
        prometheus.MustRegister(LinkDials)
        prometheus.MustRegister(Netsplits)
    })
}
