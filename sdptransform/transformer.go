/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// TransformerOptions define the settings of a Transformer.
type TransformerOptions struct {
	Logger  logrus.FieldLogger
	Metrics prometheus.Registerer

	// VerifyOutput parses every transformed description again, when its
	// input was parseable.
	VerifyOutput bool
}

// Transformer runs Transform with logging and metrics. It holds no per call
// state and is safe for concurrent use.
type Transformer struct {
	logger logrus.FieldLogger
	verify bool

	transformsTotal   *prometheus.CounterVec
	transformDuration prometheus.Histogram
}

// NewTransformer creates a Transformer with the provided options.
func NewTransformer(options *TransformerOptions) (*Transformer, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if options.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	t := &Transformer{
		logger: options.Logger,
		verify: options.VerifyOutput,

		transformsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdptransform",
			Name:      "transforms_total",
			Help:      "Total number of session description transforms by result",
		}, []string{"result"}),
		transformDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sdptransform",
			Name:      "transform_duration_seconds",
			Help:      "Duration of session description transforms",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}

	if options.Metrics != nil {
		var err error
		if t.transformsTotal, err = registerOrExisting(options.Metrics, t.transformsTotal); err != nil {
			return nil, err
		}
		if t.transformDuration, err = registerOrExisting(options.Metrics, t.transformDuration); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Transform decorates text with policy, see the Transform function.
func (t *Transformer) Transform(text string, policy *Policy) (*Result, error) {
	if policy == nil {
		policy = &Policy{}
	}
	start := time.Now()
	result, err := Transform(text, policy)
	t.transformDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if IsFormatError(err) {
			t.transformsTotal.WithLabelValues("format_error").Inc()
		} else {
			t.transformsTotal.WithLabelValues("error").Inc()
		}
		t.logger.WithError(err).Debugln("sdp transform failed")
		return nil, err
	}

	if !result.Applicable {
		t.transformsTotal.WithLabelValues("not_applicable").Inc()
		t.logger.WithField("reason", result.Reason).Debugln("sdp transform policy not applicable")
		return result, nil
	}

	if t.verify {
		if _, inErr := unmarshal(text); inErr == nil {
			if _, outErr := unmarshal(result.SDP); outErr != nil {
				t.transformsTotal.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("sdp transform produced unparseable description: %w", outErr)
			}
		}
	}

	t.transformsTotal.WithLabelValues("applied").Inc()
	t.logger.WithFields(logrus.Fields{
		"media":   policy.Media(),
		"codec":   policy.PreferredCodec,
		"payload": result.PayloadType,
		"changes": result.Changes,
		"skipped": result.Skipped,
	}).Debugln("sdp transform applied")

	return result, nil
}
