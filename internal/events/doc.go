// Package events publishes run events for acquisition and verification.
//
// An Emitter builds domain.Event envelopes with service context; a Publisher
// delivers them. KafkaPublisher writes to a Kafka topic keyed by aggregate id,
// NopPublisher drops events when Kafka is disabled, and MemoryPublisher keeps
// them in memory for tests and the CLI.
//
//	pub, _ := events.NewKafkaPublisher(cfg.Kafka, "reference-service", logger)
//	emitter := events.NewEmitter(events.EmitterConfig{ServiceName: "reference-service"})
//	ev, _ := emitter.AcquisitionCompleted(report)
//	_ = pub.Publish(ctx, ev)
package events
