package imagegen

import "testing"

func TestMemePrompt(t *testing.T) {
	tests := []struct {
		name    string
		concept string
		ref     bool
		want    string
	}{
		{
			name:    "text only",
			concept: "coffee addiction",
			want:    "Create a funny meme image with the following concept: coffee addiction. Make it humorous and visually appealing as a meme.",
		},
		{
			name:    "with reference",
			concept: "  monday mornings ",
			ref:     true,
			want:    "Using the provided image as reference, create a funny meme based on: monday mornings. Make it humorous and meme-worthy.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MemePrompt(tt.concept, tt.ref); got != tt.want {
				t.Errorf("MemePrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}
