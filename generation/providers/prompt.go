package providers

// systemPrompt is shared by every text backend.
const systemPrompt = "You write short social media posts for a Facebook Page. Reply with the post text only."
