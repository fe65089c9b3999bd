package rtp

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

// ValidatorConfig bounds the inter-packet jumps the validator tolerates.
type ValidatorConfig struct {
	// MaxSnJump is the maximum allowed modular distance between the
	// sequence numbers of consecutive packets.
	MaxSnJump int

	// MaxTsJump is the maximum allowed RTP timestamp advance between
	// consecutive packets, expressed as a duration at the stream rate.
	MaxTsJump time.Duration
}

// DefaultValidatorConfig returns the gates used when none are configured.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxSnJump: 100,
		MaxTsJump: time.Second,
	}
}

// Validator is a stateful filter over the packet stream of one session.
//
// It drops any packet that, relative to the previously accepted packet,
// changes source id or payload type, jumps too far in sequence number or
// timestamp, carries a negative capture timestamp, or drops back to an
// unknown (zero) capture timestamp after a known one. The "previous" slot is
// only advanced by packets that are strictly greater in RTP order, so a
// replayed packet is dropped rather than resetting the stream state.
type Validator struct {
	reader packet.Reader
	config ValidatorConfig
	spec   audio.SampleSpec

	prev *packet.Packet

	dropped uint64
}

// NewValidator creates a validator pulling from reader.
func NewValidator(reader packet.Reader, config ValidatorConfig, spec audio.SampleSpec) *Validator {
	logrus.WithFields(logrus.Fields{
		"max_sn_jump": config.MaxSnJump,
		"max_ts_jump": config.MaxTsJump,
		"sample_spec": spec.String(),
	}).Debug("rtp validator: created")
	return &Validator{
		reader: reader,
		config: config,
		spec:   spec,
	}
}

// Read returns the next packet that passes validation, or (nil, nil) when
// the upstream reader is drained.
func (v *Validator) Read() (*packet.Packet, error) {
	for {
		p, err := v.reader.Read()
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}

		if err := v.validate(p); err != nil {
			v.dropped++
			if v.dropped == 1 || v.dropped%100 == 0 {
				fields := logrus.Fields{
					"dropped": v.dropped,
					"reason":  err.Error(),
				}
				if p.RTP != nil {
					fields["seqnum"] = p.RTP.SeqNum
				}
				logrus.WithFields(fields).Warn("rtp validator: dropping packet")
			}
			continue
		}

		if v.prev == nil || packet.Compare(p, v.prev) > 0 {
			v.prev = p
		}
		return p, nil
	}
}

// Dropped returns the number of rejected packets.
func (v *Validator) Dropped() uint64 {
	return v.dropped
}

func (v *Validator) validate(p *packet.Packet) error {
	if p.RTP == nil {
		return fmt.Errorf("%w: no rtp view", ErrPolicyViolation)
	}
	if v.prev == nil {
		return nil
	}
	prev := v.prev.RTP
	next := p.RTP

	if next.SourceID != prev.SourceID {
		return fmt.Errorf("%w: source id changed %d -> %d",
			ErrPolicyViolation, prev.SourceID, next.SourceID)
	}
	if next.PayloadType != prev.PayloadType {
		return fmt.Errorf("%w: payload type changed %d -> %d",
			ErrPolicyViolation, prev.PayloadType, next.PayloadType)
	}

	snDist := packet.SeqnumDiff(next.SeqNum, prev.SeqNum)
	if snDist < 0 {
		snDist = -snDist
	}
	if snDist > v.config.MaxSnJump {
		return fmt.Errorf("%w: seqnum jump %d exceeds %d",
			ErrPolicyViolation, snDist, v.config.MaxSnJump)
	}

	tsDist := packet.TimestampDiff(next.Timestamp, prev.Timestamp)
	if tsDist < 0 {
		tsDist = -tsDist
	}
	if v.spec.RTPDeltaToDuration(tsDist) > v.config.MaxTsJump {
		return fmt.Errorf("%w: timestamp jump %d exceeds %v",
			ErrPolicyViolation, tsDist, v.config.MaxTsJump)
	}

	if next.CaptureTS < 0 {
		return fmt.Errorf("%w: negative capture timestamp %d",
			ErrPolicyViolation, next.CaptureTS)
	}
	if next.CaptureTS == 0 && prev.CaptureTS != 0 {
		return fmt.Errorf("%w: capture timestamp became unknown",
			ErrPolicyViolation)
	}
	return nil
}
