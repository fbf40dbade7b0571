package imagegen

import (
	"bytes"
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

var _ Client = (*OpenAI)(nil)

// OpenAI implements Client on the OpenAI Images API.
type OpenAI struct {
	Client *openai.Client

	// Model is the image model, e.g. "gpt-image-1".
	Model string
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ImageGenerateParams{
		Prompt:  prompt,
		Model:   openai.ImageModel(o.Model),
		N:       param.NewOpt[int64](1),
		Size:    openai.ImageGenerateParamsSize1024x1024,
		Quality: openai.ImageGenerateParamsQualityHigh,
	}
	if o.legacy() {
		params.Quality = openai.ImageGenerateParamsQualityHD
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}
	resp, err := o.Client.Images.Generate(ctx, params)
	if err != nil {
		return "", err
	}
	return firstImage(resp)
}

func (o *OpenAI) Edit(ctx context.Context, image, prompt string) (string, error) {
	data, err := DecodeImage(image)
	if err != nil {
		return "", err
	}
	if len(data) > MaxEditBytes {
		return "", ErrTooLarge
	}
	params := openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(data), "image.png", "image/png"),
		},
		Prompt:  prompt,
		Model:   openai.ImageModel(o.Model),
		N:       param.NewOpt[int64](1),
		Size:    openai.ImageEditParamsSize1024x1024,
		Quality: openai.ImageEditParamsQualityHigh,
	}
	if o.legacy() {
		params.Quality = ""
		params.ResponseFormat = openai.ImageEditParamsResponseFormatB64JSON
	}
	resp, err := o.Client.Images.Edit(ctx, params)
	if err != nil {
		return "", err
	}
	return firstImage(resp)
}

// legacy reports whether the model is a DALL-E model, which only returns
// base64 when asked to.
func (o *OpenAI) legacy() bool {
	return strings.HasPrefix(o.Model, "dall-e")
}

func firstImage(resp *openai.ImagesResponse) (string, error) {
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", ErrNoImage
	}
	return StripDataURL(resp.Data[0].B64JSON), nil
}
