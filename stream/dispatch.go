package stream

import (
	"encoding/json"

	"signalflow/logger"
	"signalflow/metrics"
	"signalflow/models"
)

// handleMessage parses one raw frame and routes it by its type tag. Parse
// failures and unknown types are logged and dropped; nothing here may affect
// connection state.
func (c *Client) handleMessage(raw []byte) {
	log := c.log.WithComponent("stream_client")

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.IncrementParseError()
		log.WithError(err).Warn("failed to parse stream message")
		return
	}

	metrics.IncrementMessage(env.Type)
	logger.IncrementStreamMessage(len(raw))

	switch env.Type {
	case models.TypeNewSignal:
		var sig models.Signal
		if !c.decode(env, &sig) {
			return
		}
		c.opts.Store.AddSignal(sig)
		c.archiveSignal(sig)

	case models.TypeMarketUpdate:
		var mu models.MarketUpdate
		if !c.decode(env, &mu) {
			return
		}
		c.opts.Store.AddMarketUpdate(mu)

	case models.TypeSentimentUpdate:
		var snap models.SentimentSnapshot
		if !c.decode(env, &snap) {
			return
		}
		c.opts.Store.SetSentiment(snap)

	case models.TypeTrendingUpdate:
		var snap models.TrendingSnapshot
		if !c.decode(env, &snap) {
			return
		}
		c.opts.Store.SetTrending(snap)

	case models.TypeTrackedPrice:
		var batch models.TrackedPriceBatch
		if !c.decode(env, &batch) {
			return
		}
		c.opts.Store.UpsertPrices(batch)

	case models.TypeTrackedTransfer:
		var tr models.TrackedTransfer
		if !c.decode(env, &tr) {
			return
		}
		c.opts.Store.AddTransfer(tr)

	case models.TypeChannelMessage:
		var msg models.ChannelMessage
		if !c.decode(env, &msg) {
			return
		}
		c.opts.Store.AddChannelMessage(msg)
		logger.RecordChannelMessage(msg.ChannelName, len(msg.Text))

	case models.TypeNotification, models.TypeMonitoringStatus:
		c.invalidateCache(env.Type)

	case models.TypePong:
		// heartbeat acknowledged

	case models.TypeError:
		log.WithFields(logger.Fields{"message": env.Message}).Warn("stream error message received")

	case models.TypeConnected, models.TypeSubscribed, models.TypeUnsubscribed:
		log.WithFields(logger.Fields{"type": env.Type, "message": env.Message}).Debug("stream acknowledgement")

	default:
		log.WithFields(logger.Fields{"type": env.Type}).Debug("ignoring unknown message type")
	}
}

// decode unmarshals the envelope payload. A malformed payload is treated the
// same as an unparseable frame: logged and dropped.
func (c *Client) decode(env models.Envelope, out interface{}) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		metrics.IncrementParseError()
		c.log.WithComponent("stream_client").WithFields(logger.Fields{
			"type": env.Type,
		}).WithError(err).Warn("failed to decode message payload")
		return false
	}
	return true
}

func (c *Client) invalidateCache(msgType string) {
	if c.opts.Cache == nil {
		return
	}
	metrics.IncrementCacheInvalidation()
	c.opts.Cache.Invalidate()
	c.log.WithComponent("stream_client").WithFields(logger.Fields{
		"trigger": msgType,
	}).Debug("invalidated rest cache")
}

func (c *Client) archiveSignal(sig models.Signal) {
	if c.opts.ArchiveCh == nil {
		return
	}
	select {
	case c.opts.ArchiveCh <- sig:
	default:
		c.log.WithComponent("stream_client").Warn("archive channel full, dropping signal")
	}
}
