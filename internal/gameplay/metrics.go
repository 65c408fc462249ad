package gameplay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	joinsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamecore_game_joins_total",
		Help: "Number of successful game joins.",
	})
	answersScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamecore_answers_submitted_total",
		Help: "Number of answer submissions run through the scoring pipeline.",
	})
	timerActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamecore_timer_actions_total",
		Help: "Number of timer actions processed, by action.",
	}, []string{"action"})
)
