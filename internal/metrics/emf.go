/*
Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

SPDX-License-Identifier: MIT-0
*/

package metrics

import (
	"github.com/prozz/aws-embedded-metrics-golang/emf"
	"io"
	"os"
	"strings"
	"sync"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/rpc"
	"time"
)

const emfNamespace = "TrustedOps"

// EMFObserver writes CloudWatch embedded metric format records, one per event.
type EMFObserver struct {
	mu             sync.Mutex
	writer         io.Writer
	podName        string
	deploymentName string
}

var _ rpc.StatusObserver = (*EMFObserver)(nil)

// NewEMFObserver writes to w, stdout when nil. Pod dimensions come from POD_NAME.
func NewEMFObserver(w io.Writer) *EMFObserver {
	if w == nil {
		w = os.Stdout
	}
	podName := os.Getenv("POD_NAME")
	return &EMFObserver{
		writer:         w,
		podName:        podName,
		deploymentName: deploymentName(podName),
	}
}

func deploymentName(podName string) string {
	parts := strings.Split(podName, "-")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "-")
}

func (o *EMFObserver) logger(method rpc.Method) *emf.Logger {
	dimensions := []emf.Dimension{emf.NewDimension("Method", method.String())}
	if o.podName != "" {
		dimensions = append(dimensions,
			emf.NewDimension("Deployment", o.deploymentName),
			emf.NewDimension("Pod", o.podName))
	}
	return emf.New(emf.WithWriter(o.writer), emf.WithoutDimensions()).
		Namespace(emfNamespace).
		DimensionSet(dimensions...)
}

func (o *EMFObserver) ObserveStatus(method rpc.Method, status codec.DirectRequestStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logger(method).
		Property("status", statusLabel(status)).
		MetricAs("worker_status", 1, emf.Count).
		Log()
}

func (o *EMFObserver) ObserveResult(method rpc.Method, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	failed := 0
	if err != nil {
		failed = 1
	}
	o.logger(method).
		Property("outcome", outcomeLabel(err)).
		MetricAs("request_latency", int(elapsed.Milliseconds()), emf.Milliseconds).
		MetricAs("request_failed", failed, emf.Count).
		Log()
}

// Observers fans events out to several observers.
type Observers []rpc.StatusObserver

func (obs Observers) ObserveStatus(method rpc.Method, status codec.DirectRequestStatus) {
	for _, o := range obs {
		o.ObserveStatus(method, status)
	}
}

func (obs Observers) ObserveResult(method rpc.Method, elapsed time.Duration, err error) {
	for _, o := range obs {
		o.ObserveResult(method, elapsed, err)
	}
}
