// Package scanrelay relays scanned pages from a scanner host to a document server
// over NATS JetStream work queues.
//
// The producer watches the scanner's output directory for img_NNN images,
// groups consecutive pages into one document, renders the document as a PDF
// and publishes it as a stream of fixed-size chunks. The consumer reassembles
// the chunks into numbered result files, records the producer's periodic
// status snapshots in a CSV log and pushes the operator's desired inactivity
// timeout back to the producer.
//
// # Quick Start
//
// Producer side:
//
//	cfg, err := scanrelay.LoadConfig("producer.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	producer, err := scanrelay.NewProducer(&cfg, natsConn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := producer.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer producer.Stop(context.Background())
//
// Consumer side is symmetric with NewConsumer.
//
// # Documents
//
// A document is a run of images whose indices increase by one. An image that
// breaks the run, or an inactivity timeout, closes the open document:
//
//	img_001 img_002 img_003 | img_007 img_008 | (timeout)
//	└──── document 1 ─────┘   └── document 2 ─┘
//
// Files that do not match img_NNN.{jpg,jpeg,png} are deleted.
//
// # Queues
//
//   - chunks: producer → consumer, one message per chunk in position order
//   - telemetry: producer → consumer, JSON status snapshots
//   - control: consumer → producer, timeout in milliseconds as decimal text
//
// All three are JetStream work-queue streams created on startup by whichever
// side starts first.
package scanrelay
