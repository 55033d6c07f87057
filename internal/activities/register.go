package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkTextActivity)
	w.RegisterActivity(a.EmbedAndIndexChunksActivity)
	w.RegisterActivity(a.DeleteDocumentVectorsActivity)
	w.RegisterActivity(a.WriteDocumentArtifactsActivity)
	w.RegisterActivity(a.RegisterDocumentActivity)
	w.RegisterActivity(a.ListDocumentsActivity)
}
